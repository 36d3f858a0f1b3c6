package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"

	"queue-system/internal/status"
	"queue-system/internal/store"
	"queue-system/models"
	"queue-system/monitoring"
	"queue-system/utils"
)

// RetryStrategy shapes the backoff between allocation attempts after a
// number conflict: BaseDelay doubles each retry and is capped at MaxDelay.
type RetryStrategy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Delay returns the pause before retry number attempt (0-based).
func (r RetryStrategy) Delay(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := r.BaseDelay * time.Duration(1<<uint(attempt))
	if d > r.MaxDelay || d <= 0 {
		return r.MaxDelay
	}
	return d
}

// Allocator issues per-scope monotonically increasing ticket numbers. The
// scope lock makes read-max-then-insert atomic within this process; the
// unique (scope_id, period, number) index backstops writers elsewhere, and
// a conflict there retries from the read.
type Allocator struct {
	store store.TicketStore
	locks *ScopeLocker
	clock clockz.Clock
	loc   *time.Location
	fee   decimal.Decimal
	retry RetryStrategy
}

func NewAllocator(ts store.TicketStore, locks *ScopeLocker, clock clockz.Clock, loc *time.Location, fee decimal.Decimal, retry RetryStrategy) *Allocator {
	return &Allocator{
		store: ts,
		locks: locks,
		clock: clock,
		loc:   loc,
		fee:   fee,
		retry: retry,
	}
}

// Allocate reserves the next ticket number for the scope's current service
// day. It returns status.ErrScopeInvalid for malformed scopes and
// status.ErrAllocationFailed once conflict retries are exhausted.
func (a *Allocator) Allocate(ctx context.Context, scope models.ServiceScope) (*models.Ticket, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	started := a.clock.Now()

	var lastErr error
	for attempt := 0; attempt < a.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			monitoring.TrackAllocationRetry(scope.ID())
			select {
			case <-a.clock.After(a.retry.Delay(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		ticket, err := a.allocateOnce(ctx, scope)
		if err == nil {
			monitoring.TrackTicketIssued(scope.ID())
			monitoring.ObserveAllocationSeconds(a.clock.Now().Sub(started).Seconds())
			return ticket, nil
		}
		if !errors.Is(err, status.ErrConflict) {
			return nil, err
		}

		monitoring.TrackAllocationConflict(scope.ID())
		slog.Warn("ticket number conflict, retrying",
			"scope", scope.ID(),
			"attempt", attempt+1,
			"max_attempts", a.retry.MaxAttempts)
		lastErr = err
	}

	return nil, fmt.Errorf("%w: scope %s after %d attempts: %v",
		status.ErrAllocationFailed, scope.ID(), a.retry.MaxAttempts, lastErr)
}

// Cancel withdraws a still-waiting ticket from today's queue. Served and
// already-cancelled tickets report status.ErrTicketNotCancellable.
func (a *Allocator) Cancel(ctx context.Context, scope models.ServiceScope, number int) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	unlock := a.locks.Lock(scope.ID())
	defer unlock()

	period := PeriodOf(a.clock.Now(), a.loc)
	if err := a.store.CancelTicket(ctx, scope.ID(), period, number); err != nil {
		return err
	}

	slog.Info("ticket cancelled", "scope", scope.ID(), "number", number)
	return nil
}

func (a *Allocator) allocateOnce(ctx context.Context, scope models.ServiceScope) (*models.Ticket, error) {
	unlock := a.locks.Lock(scope.ID())
	defer unlock()

	// Period is computed inside the lock so an allocation racing midnight
	// lands wholly in one service day.
	period := PeriodOf(a.clock.Now(), a.loc)

	max, err := a.store.MaxTicketNumber(ctx, scope.ID(), period)
	if err != nil {
		return nil, err
	}

	code, err := utils.GenerateTicketCode()
	if err != nil {
		return nil, fmt.Errorf("ticket code: %w", err)
	}

	return a.store.InsertTicket(ctx, store.InsertTicketParams{
		Scope:  scope,
		Period: period,
		Number: max + 1,
		Code:   code,
		Fee:    a.fee.StringFixed(2),
	})
}
