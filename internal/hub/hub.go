// Package hub fans queue snapshots out to live subscribers. One registry
// serves every scope; subscribers of one scope never see another scope's
// frames.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"queue-system/internal/notify"
	"queue-system/internal/services"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/monitoring"
)

// SnapshotFunc produces the current snapshot for a scope; the hub calls it
// once per subscription to build the initial frame.
type SnapshotFunc func(ctx context.Context, scope models.ServiceScope) (models.Snapshot, error)

// Sink is one subscriber's delivery endpoint. Write must not block: a sink
// that cannot keep up drops frames or reports itself closed.
type Sink interface {
	Write(snap models.Snapshot) error
	Close()
}

// subscriber pairs a sink with the viewer identity used to personalize
// frames.
type subscriber struct {
	id     string
	ticket *int
	sink   Sink
}

// notifyTimeout bounds one mirror publish.
const notifyTimeout = 5 * time.Second

// Hub implements the engine's Broadcaster. Publish runs while the engine
// still holds the scope lock, and Subscribe takes that same lock around the
// initial snapshot, so every subscriber sees its initial frame strictly
// before any later change and never misses one in between.
type Hub struct {
	locks    *services.ScopeLocker
	snapshot SnapshotFunc
	notifier notify.Notifier

	mu     sync.RWMutex
	scopes map[string]map[string]*subscriber
}

func New(locks *services.ScopeLocker, snapshot SnapshotFunc, notifier notify.Notifier) *Hub {
	return &Hub{
		locks:    locks,
		snapshot: snapshot,
		notifier: notifier,
		scopes:   make(map[string]map[string]*subscriber),
	}
}

// Subscribe registers a sink for the scope and delivers the initial
// snapshot through it before returning. viewerTicket, when non-nil,
// personalizes every frame with that ticket's wait estimate. The returned
// id is the handle for Unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, scope models.ServiceScope, viewerTicket *int, sink Sink) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrScopeInvalid, err)
	}

	unlock := h.locks.Lock(scope.ID())
	defer unlock()

	snap, err := h.snapshot(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("initial snapshot for %s: %w", scope.ID(), err)
	}

	sub := &subscriber{id: uuid.NewString(), sink: sink}
	if viewerTicket != nil {
		ticket := *viewerTicket
		sub.ticket = &ticket
	}

	h.mu.Lock()
	subs := h.scopes[scope.ID()]
	if subs == nil {
		subs = make(map[string]*subscriber)
		h.scopes[scope.ID()] = subs
	}
	subs[sub.id] = sub
	count := len(subs)
	h.mu.Unlock()

	// Still inside the scope lock: no serve can commit between this frame
	// and the registration above, so the first frame is never stale.
	if err := sink.Write(personalize(snap, sub.ticket)); err != nil {
		h.remove(scope.ID(), sub.id)
		return "", err
	}

	monitoring.SetSubscribers(scope.ID(), count)
	slog.Debug("subscriber joined", "scope", scope.ID(), "subscriber", sub.id, "total", count)
	return sub.id, nil
}

// Unsubscribe removes the subscriber and closes its sink. Unknown ids are
// ignored, so double unsubscribes and write-failure races are safe.
func (h *Hub) Unsubscribe(scope models.ServiceScope, id string) {
	h.remove(scope.ID(), id)
}

func (h *Hub) remove(scopeID, id string) {
	h.mu.Lock()
	subs := h.scopes[scopeID]
	sub, ok := subs[id]
	if ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.scopes, scopeID)
		}
	}
	count := len(subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	sub.sink.Close()
	monitoring.SetSubscribers(scopeID, count)
	slog.Debug("subscriber left", "scope", scopeID, "subscriber", id, "remaining", count)
}

// Publish fans the snapshot out to the scope's subscribers, each frame
// personalized to its viewer. A sink reporting itself closed is removed; a
// healthy-but-full sink just loses this frame. The external mirror runs in
// the background so a slow provider never holds the scope lock.
func (h *Hub) Publish(ctx context.Context, scope models.ServiceScope, snap models.Snapshot) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.scopes[scope.ID()]))
	for _, sub := range h.scopes[scope.ID()] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.sink.Write(personalize(snap, sub.ticket)); err != nil {
			slog.Info("dropping closed subscriber", "scope", scope.ID(), "subscriber", sub.id)
			h.remove(scope.ID(), sub.id)
		}
	}
	monitoring.TrackBroadcast(scope.ID())

	if h.notifier == nil {
		return
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := h.notifier.PublishSnapshot(nctx, scope, snap); err != nil {
			slog.Warn("snapshot mirror failed", "scope", scope.ID(), "error", err)
		}
	}()
}

// SubscriberCount reports the live subscribers for a scope.
func (h *Hub) SubscriberCount(scopeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scopeID])
}

// Close drops every subscriber, closing their sinks. New subscriptions
// arriving afterwards still work; Close is a drain, not a latch.
func (h *Hub) Close() {
	h.mu.Lock()
	scopes := h.scopes
	h.scopes = make(map[string]map[string]*subscriber)
	h.mu.Unlock()

	for scopeID, subs := range scopes {
		for _, sub := range subs {
			sub.sink.Close()
		}
		monitoring.SetSubscribers(scopeID, 0)
	}
}

func personalize(snap models.Snapshot, ticket *int) models.Snapshot {
	if ticket == nil {
		return snap
	}
	wait := services.EstimateWaitSeconds(*ticket, snap.NowServingToken, snap.AvgServiceSeconds)
	return snap.WithViewer(*ticket, wait)
}
