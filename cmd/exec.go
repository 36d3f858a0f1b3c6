package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"

	"queue-system/config"
	"queue-system/internal/handlers"
	"queue-system/internal/hub"
	"queue-system/internal/notify"
	"queue-system/internal/services"
	"queue-system/internal/store"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/security"
	"queue-system/utils"
)

// shutdownTimeout bounds the ops server drain on termination.
const shutdownTimeout = 30 * time.Second

func Start() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fee, err := decimal.NewFromString(cfg.BookingFee)
	if err != nil {
		return fmt.Errorf("booking fee %q: %w", cfg.BookingFee, err)
	}

	app := pocketbase.New()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize the snapshot mirror (PubNub when keys are configured)
	notifier := notify.New(cfg)

	// Initialize services
	st := store.NewPocketBase(app)
	locks := services.NewScopeLocker()
	clock := clockz.RealClock
	loc := cfg.Location()

	// The hub needs the engine for initial frames and the engine needs the
	// hub to broadcast; the closure defers the lookup until serve time.
	var engine *services.Engine
	liveHub := hub.New(locks, func(ctx context.Context, scope models.ServiceScope) (models.Snapshot, error) {
		return engine.Snapshot(ctx, scope)
	}, notifier)
	engine = services.NewEngine(st, locks, clock, loc, liveHub)

	allocator := services.NewAllocator(st, locks, clock, loc, fee, services.RetryStrategy{
		MaxAttempts: cfg.AllocMaxAttempts,
		BaseDelay:   cfg.AllocBaseDelay,
		MaxDelay:    cfg.AllocMaxDelay,
	})
	stats := services.NewStats(st, clock, loc)

	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax)
	boards := security.NewBoardKeyChecker(cfg.BoardKeyHashes)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(app, allocator, engine, stats, liveHub, limiter, boards, cfg.SubscriberBuffer)

	// Runtime monitoring plus the ops endpoint for Prometheus scrapes
	monitor := monitoring.NewMonitor(redisClient)
	opsServer := monitoring.NewOpsServer(cfg.OpsAddr, redisClient, cfg.EnableMetrics)
	go func() {
		slog.Info("ops server listening", "addr", cfg.OpsAddr, "metrics", cfg.EnableMetrics)
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server stopped", "error", err)
		}
	}()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Queue endpoints
		e.Router.POST("/api/v1/queue/tickets", queueHandler.CreateTicket)
		e.Router.POST("/api/v1/queue/tickets/cancel", queueHandler.CancelTicket)
		e.Router.POST("/api/v1/queue/serve", queueHandler.Serve)
		e.Router.POST("/api/v1/queue/break/start", queueHandler.StartBreak)
		e.Router.POST("/api/v1/queue/break/end", queueHandler.EndBreak)
		e.Router.GET("/api/v1/queue/snapshot", queueHandler.Snapshot)
		e.Router.GET("/api/v1/queue/subscribe", queueHandler.Subscribe)
		e.Router.GET("/api/v1/queue/stats", queueHandler.Stats)

		// Admin endpoints
		e.Router.GET("/api/v1/admin/dashboard", queueHandler.Dashboard)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(ctx); err != nil {
			slog.Warn("ops server shutdown", "error", err)
		}

		monitor.Stop()
		liveHub.Close()
		notifier.Close()

		return e.Next()
	})

	return app.Start()
}
