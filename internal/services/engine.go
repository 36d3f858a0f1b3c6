package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"

	"queue-system/internal/status"
	"queue-system/internal/store"
	"queue-system/models"
	"queue-system/monitoring"
)

// Broadcaster receives the scope-wide snapshot produced by every accepted
// state change. Publish is called while the scope lock is held, so
// snapshots leave the engine in the exact order their writes committed.
type Broadcaster interface {
	Publish(ctx context.Context, scope models.ServiceScope, snap models.Snapshot)
}

// NoopBroadcaster drops snapshots. Used when no hub is wired in.
type NoopBroadcaster struct{}

func (NoopBroadcaster) Publish(context.Context, models.ServiceScope, models.Snapshot) {}

// Engine owns every mutation of a scope's MetricsState: serve events, break
// windows and the incremental service-time average. All mutating paths take
// the scope lock, re-read state, apply one transition, persist, then
// broadcast. A failed persist aborts the transition and nothing is
// broadcast.
type Engine struct {
	store       store.Store
	locks       *ScopeLocker
	clock       clockz.Clock
	loc         *time.Location
	broadcaster Broadcaster
}

func NewEngine(st store.Store, locks *ScopeLocker, clock clockz.Clock, loc *time.Location, b Broadcaster) *Engine {
	if b == nil {
		b = NoopBroadcaster{}
	}
	return &Engine{
		store:       st,
		locks:       locks,
		clock:       clock,
		loc:         loc,
		broadcaster: b,
	}
}

// OnServe records that the desk called ticketNumber: it advances
// now_serving_token (never backwards), stamps the ticket served and folds
// the elapsed active time into the running average. The serve that opens
// the day, and the serve that ends a break, contribute zero elapsed time.
func (e *Engine) OnServe(ctx context.Context, scope models.ServiceScope, ticketNumber int) (models.Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	unlock := e.locks.Lock(scope.ID())
	defer unlock()

	now := e.clock.Now()
	period := PeriodOf(now, e.loc)

	state, err := e.store.ReadMetrics(ctx, scope, period)
	if err != nil {
		return models.Snapshot{}, err
	}

	expireBreak(state, now)
	onBreak := state.OnBreak(now)
	if onBreak {
		state.ClearBreak()
	}

	var elapsed float64
	if state.ServiceStartAt == nil {
		// First serve of the service day starts the clock.
		state.ServiceStartAt = &now
	} else if !onBreak && state.ActiveClockAt != nil && now.After(*state.ActiveClockAt) {
		elapsed = now.Sub(*state.ActiveClockAt).Seconds()
	}

	if err := e.store.MarkTicketServed(ctx, scope.ID(), period, ticketNumber, now); err != nil {
		return models.Snapshot{}, err
	}

	served, err := e.store.CountServed(ctx, scope.ID(), period)
	if err != nil {
		return models.Snapshot{}, err
	}
	// Serving a number that was never issued leaves the count untouched;
	// weight the sample as the first so the division stays defined.
	if served < 1 {
		served = 1
	}

	state.AvgServiceSeconds = (state.AvgServiceSeconds*float64(served-1) + elapsed) / float64(served)
	if ticketNumber > state.NowServingToken {
		state.NowServingToken = ticketNumber
	}
	state.ActiveClockAt = &now

	if err := e.store.WriteMetrics(ctx, scope, period, state); err != nil {
		return models.Snapshot{}, err
	}

	snap := buildSnapshot(state, now)
	e.broadcaster.Publish(ctx, scope, snap)
	monitoring.TrackServe(scope.ID())
	monitoring.SetOnBreak(scope.ID(), snap.OnBreak)
	return snap, nil
}

// StartBreak opens a break window for the scope. until nil means the break
// holds until an explicit EndBreak. Starting a break while one is already
// open is a no-op: nothing is written and nothing is broadcast.
func (e *Engine) StartBreak(ctx context.Context, scope models.ServiceScope, entityID string, until *time.Time) (models.Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	unlock := e.locks.Lock(scope.ID())
	defer unlock()

	now := e.clock.Now()
	period := PeriodOf(now, e.loc)

	state, err := e.store.ReadMetrics(ctx, scope, period)
	if err != nil {
		return models.Snapshot{}, err
	}

	expireBreak(state, now)
	if state.OnBreak(now) {
		return buildSnapshot(state, now), nil
	}

	state.BreakStartedAt = &now
	if until != nil {
		u := *until
		state.BreakUntil = &u
	} else {
		state.BreakUntil = nil
	}
	state.BreakingEntityID = entityID

	if err := e.store.WriteMetrics(ctx, scope, period, state); err != nil {
		return models.Snapshot{}, err
	}

	snap := buildSnapshot(state, now)
	e.broadcaster.Publish(ctx, scope, snap)
	monitoring.TrackBreakStarted(scope.ID())
	monitoring.SetOnBreak(scope.ID(), snap.OnBreak)
	return snap, nil
}

// EndBreak closes the scope's break window and restarts the active clock at
// now, so the paused stretch never reaches the average. Ending while not on
// break returns the current state untouched; a window that already expired
// on its own gets its lazy cleanup persisted here.
func (e *Engine) EndBreak(ctx context.Context, scope models.ServiceScope) (models.Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	unlock := e.locks.Lock(scope.ID())
	defer unlock()

	now := e.clock.Now()
	period := PeriodOf(now, e.loc)

	state, err := e.store.ReadMetrics(ctx, scope, period)
	if err != nil {
		return models.Snapshot{}, err
	}

	if expired := expireBreak(state, now); expired {
		if err := e.store.WriteMetrics(ctx, scope, period, state); err != nil {
			return models.Snapshot{}, err
		}
		snap := buildSnapshot(state, now)
		e.broadcaster.Publish(ctx, scope, snap)
		monitoring.SetOnBreak(scope.ID(), false)
		return snap, nil
	}

	if !state.OnBreak(now) {
		return buildSnapshot(state, now), nil
	}

	state.ClearBreak()
	state.ActiveClockAt = &now

	if err := e.store.WriteMetrics(ctx, scope, period, state); err != nil {
		return models.Snapshot{}, err
	}

	snap := buildSnapshot(state, now)
	e.broadcaster.Publish(ctx, scope, snap)
	monitoring.TrackBreakEnded(scope.ID())
	monitoring.SetOnBreak(scope.ID(), false)
	return snap, nil
}

// Snapshot returns the scope's current public state without mutating
// anything. An expired break window reads as off-break; the row itself is
// cleaned up by the next mutating operation.
func (e *Engine) Snapshot(ctx context.Context, scope models.ServiceScope) (models.Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	now := e.clock.Now()
	period := PeriodOf(now, e.loc)

	state, err := e.store.ReadMetrics(ctx, scope, period)
	if err != nil {
		return models.Snapshot{}, err
	}
	return buildSnapshot(state, now), nil
}

// expireBreak closes a break whose scheduled end has passed. The active
// clock anchor moves to that scheduled end, not to now, so the overtime gap
// between window end and the next serve is excluded from the average.
// Reports whether it changed the state.
func expireBreak(state *models.MetricsState, now time.Time) bool {
	if !state.BreakExpired(now) {
		return false
	}
	until := *state.BreakUntil
	state.ActiveClockAt = &until
	state.ClearBreak()
	return true
}

// buildSnapshot renders the public view of a state at the given instant. A
// break window that has already run out shows as on_break=false even if the
// row still carries it.
func buildSnapshot(state *models.MetricsState, now time.Time) models.Snapshot {
	snap := models.Snapshot{
		ScopeID:           state.ScopeID,
		NowServingToken:   state.NowServingToken,
		AvgServiceSeconds: state.AvgServiceSeconds,
	}
	if state.OnBreak(now) {
		snap.OnBreak = true
		if state.BreakUntil != nil {
			u := *state.BreakUntil
			snap.BreakUntil = &u
		}
	}
	return snap
}
