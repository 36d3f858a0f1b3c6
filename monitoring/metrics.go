package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tickets_issued_total",
			Help: "Tickets allocated per scope",
		},
		[]string{"scope"},
	)

	allocationConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_allocation_conflicts_total",
			Help: "Ticket number collisions hit during allocation",
		},
		[]string{"scope"},
	)

	allocationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_allocation_retries_total",
			Help: "Allocation attempts beyond the first",
		},
		[]string{"scope"},
	)

	allocationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "queue_allocation_duration_seconds",
			Help:    "Wall time to allocate one ticket, retries included",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	servesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_serves_total",
			Help: "Serve events accepted per scope",
		},
		[]string{"scope"},
	)

	breaksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_breaks_started_total",
			Help: "Break windows opened per scope",
		},
		[]string{"scope"},
	)

	breaksEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_breaks_ended_total",
			Help: "Break windows explicitly closed per scope",
		},
		[]string{"scope"},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_broadcasts_total",
			Help: "Snapshots fanned out per scope",
		},
		[]string{"scope"},
	)

	droppedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_subscriber_drops_total",
			Help: "Snapshot writes dropped on slow or dead subscribers",
		},
		[]string{"scope"},
	)

	subscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_subscribers",
			Help: "Live snapshot subscribers per scope",
		},
		[]string{"scope"},
	)

	scopeOnBreak = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_scope_on_break",
			Help: "1 while the scope has an open break window",
		},
		[]string{"scope"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_rate_limited_total",
			Help: "Requests rejected by the per-client limiter",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "1 when the Redis ping succeeds, 0 otherwise",
		},
	)
)

func TrackTicketIssued(scope string) {
	ticketsIssued.WithLabelValues(scope).Inc()
}

func TrackAllocationConflict(scope string) {
	allocationConflicts.WithLabelValues(scope).Inc()
}

func TrackAllocationRetry(scope string) {
	allocationRetries.WithLabelValues(scope).Inc()
}

func ObserveAllocationSeconds(seconds float64) {
	allocationSeconds.Observe(seconds)
}

func TrackServe(scope string) {
	servesTotal.WithLabelValues(scope).Inc()
}

func TrackBreakStarted(scope string) {
	breaksStarted.WithLabelValues(scope).Inc()
}

func TrackBreakEnded(scope string) {
	breaksEnded.WithLabelValues(scope).Inc()
}

func TrackBroadcast(scope string) {
	broadcastsTotal.WithLabelValues(scope).Inc()
}

func TrackDroppedWrite(scope string) {
	droppedWrites.WithLabelValues(scope).Inc()
}

func SetSubscribers(scope string, n int) {
	subscribers.WithLabelValues(scope).Set(float64(n))
}

func SetOnBreak(scope string, on bool) {
	v := 0.0
	if on {
		v = 1.0
	}
	scopeOnBreak.WithLabelValues(scope).Set(v)
}

func TrackRateLimited() {
	rateLimited.Inc()
}

// Monitor samples runtime health on a fixed cadence until Stop is called.
type Monitor struct {
	redis *redis.Client
	stop  chan struct{}
	done  chan struct{}
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{
		redis: redisClient,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	defer close(m.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.redis.Ping(ctx).Err(); err != nil {
		redisUp.Set(0)
		return
	}
	redisUp.Set(1)
}

// Stop halts collection and waits for the sampler goroutine to exit.
func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}
