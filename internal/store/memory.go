package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"queue-system/internal/status"
	"queue-system/models"
)

// Memory is an in-process Store used by tests and local experiments. It
// enforces the same (scope, period, number) uniqueness the SQLite index
// does, so allocator retry paths behave identically against it.
type Memory struct {
	mu      sync.RWMutex
	tickets map[string]map[int]*models.Ticket
	metrics map[string]*models.MetricsState
	nextID  int
}

func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[string]map[int]*models.Ticket),
		metrics: make(map[string]*models.MetricsState),
	}
}

func ticketKey(scopeID, period string) string {
	return scopeID + "|" + period
}

func (m *Memory) MaxTicketNumber(_ context.Context, scopeID, period string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	max := 0
	for number := range m.tickets[ticketKey(scopeID, period)] {
		if number > max {
			max = number
		}
	}
	return max, nil
}

func (m *Memory) InsertTicket(_ context.Context, p InsertTicketParams) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ticketKey(p.Scope.ID(), p.Period)
	if m.tickets[key] == nil {
		m.tickets[key] = make(map[int]*models.Ticket)
	}
	if _, exists := m.tickets[key][p.Number]; exists {
		return nil, fmt.Errorf("insert ticket %s/%s #%d: %w", p.Scope.ID(), p.Period, p.Number, status.ErrConflict)
	}

	m.nextID++
	ticket := &models.Ticket{
		ID:        fmt.Sprintf("mem_%d", m.nextID),
		TenantID:  p.Scope.TenantID,
		ServerID:  p.Scope.ServerID,
		ScopeID:   p.Scope.ID(),
		Period:    p.Period,
		Number:    p.Number,
		Code:      p.Code,
		Fee:       p.Fee,
		Status:    models.TicketStatusWaiting,
		CreatedAt: time.Now(),
	}
	m.tickets[key][p.Number] = ticket

	copied := *ticket
	return &copied, nil
}

func (m *Memory) MarkTicketServed(_ context.Context, scopeID, period string, number int, servedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[ticketKey(scopeID, period)][number]
	if !ok {
		return nil
	}
	ticket.Status = models.TicketStatusServed
	at := servedAt
	ticket.ServedAt = &at
	return nil
}

func (m *Memory) CancelTicket(_ context.Context, scopeID, period string, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ticket, ok := m.tickets[ticketKey(scopeID, period)][number]
	if !ok {
		return fmt.Errorf("cancel %s/%s #%d: %w", scopeID, period, number, status.ErrTicketNotFound)
	}
	if ticket.Status != models.TicketStatusWaiting {
		return fmt.Errorf("cancel %s/%s #%d (status %s): %w",
			scopeID, period, number, ticket.Status, status.ErrTicketNotCancellable)
	}
	ticket.Status = models.TicketStatusCancelled
	return nil
}

func (m *Memory) CountServed(_ context.Context, scopeID, period string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, ticket := range m.tickets[ticketKey(scopeID, period)] {
		if ticket.Status == models.TicketStatusServed {
			count++
		}
	}
	return count, nil
}

func (m *Memory) TicketCounts(_ context.Context, scopeID, period string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, ticket := range m.tickets[ticketKey(scopeID, period)] {
		counts[ticket.Status]++
	}
	return counts, nil
}

func (m *Memory) ReadMetrics(_ context.Context, scope models.ServiceScope, period string) (*models.MetricsState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.metrics[scope.ID()]
	if !ok || state.Period != period {
		return freshState(scope, period), nil
	}
	return cloneState(state), nil
}

func (m *Memory) WriteMetrics(_ context.Context, scope models.ServiceScope, period string, state *models.MetricsState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := cloneState(state)
	stored.ScopeID = scope.ID()
	stored.TenantID = scope.TenantID
	stored.ServerID = scope.ServerID
	stored.Period = period
	m.metrics[scope.ID()] = stored
	return nil
}

func (m *Memory) ListMetrics(_ context.Context, period string) ([]*models.MetricsState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*models.MetricsState, 0, len(m.metrics))
	for _, state := range m.metrics {
		if state.Period == period {
			states = append(states, cloneState(state))
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ScopeID < states[j].ScopeID })
	return states, nil
}

func cloneState(in *models.MetricsState) *models.MetricsState {
	out := *in
	out.ServiceStartAt = cloneTime(in.ServiceStartAt)
	out.ActiveClockAt = cloneTime(in.ActiveClockAt)
	out.BreakStartedAt = cloneTime(in.BreakStartedAt)
	out.BreakUntil = cloneTime(in.BreakUntil)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
