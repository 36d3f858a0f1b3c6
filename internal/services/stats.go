package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"

	"queue-system/internal/status"
	"queue-system/internal/store"
	"queue-system/models"
)

var hundred = decimal.NewFromInt(100)

// Stats aggregates per-day reporting figures from the ticket rows and the
// scope's metrics state. Read-only.
type Stats struct {
	store store.Store
	clock clockz.Clock
	loc   *time.Location
}

func NewStats(st store.Store, clock clockz.Clock, loc *time.Location) *Stats {
	return &Stats{store: st, clock: clock, loc: loc}
}

// Daily returns the scope's totals for the current service day.
func (s *Stats) Daily(ctx context.Context, scope models.ServiceScope) (*models.DailyStats, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	now := s.clock.Now()
	period := PeriodOf(now, s.loc)

	counts, err := s.store.TicketCounts(ctx, scope.ID(), period)
	if err != nil {
		return nil, err
	}
	state, err := s.store.ReadMetrics(ctx, scope, period)
	if err != nil {
		return nil, err
	}

	issued := 0
	for _, n := range counts {
		issued += n
	}
	cancelled := counts[models.TicketStatusCancelled]

	rate := decimal.Zero
	if issued > 0 {
		rate = decimal.NewFromInt(int64(cancelled)).Mul(hundred).Div(decimal.NewFromInt(int64(issued)))
	}

	return &models.DailyStats{
		ScopeID:           scope.ID(),
		Period:            period,
		Issued:            issued,
		Served:            counts[models.TicketStatusServed],
		Cancelled:         cancelled,
		QueueDepth:        counts[models.TicketStatusWaiting] + counts[models.TicketStatusServing],
		CancellationRate:  rate.StringFixed(2),
		AvgServiceSeconds: state.AvgServiceSeconds,
	}, nil
}

// Dashboard lists every scope's public snapshot for the current service
// day, for the operator overview.
func (s *Stats) Dashboard(ctx context.Context) ([]models.Snapshot, error) {
	now := s.clock.Now()
	period := PeriodOf(now, s.loc)

	states, err := s.store.ListMetrics(ctx, period)
	if err != nil {
		return nil, err
	}

	snaps := make([]models.Snapshot, 0, len(states))
	for _, state := range states {
		snaps = append(snaps, buildSnapshot(state, now))
	}
	return snaps, nil
}
