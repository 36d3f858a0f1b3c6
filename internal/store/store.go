// Package store persists tickets and per-scope service metrics. The primary
// implementation rides on the PocketBase data layer; Memory backs tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/internal/status"
	"queue-system/models"
)

const (
	TicketsCollection = "tickets"
	MetricsCollection = "queue_metrics"
)

// InsertTicketParams carries everything needed to persist a freshly
// allocated ticket. Number must already be reserved by the caller; the
// unique (scope_id, period, number) index is the backstop.
type InsertTicketParams struct {
	Scope  models.ServiceScope
	Period string
	Number int
	Code   string
	Fee    string
}

// TicketStore is the persistence surface the allocator and engine write
// tickets through.
type TicketStore interface {
	// MaxTicketNumber returns the highest number issued for the scope and
	// period, 0 when none exist yet.
	MaxTicketNumber(ctx context.Context, scopeID, period string) (int, error)
	// InsertTicket writes a new waiting ticket. A duplicate (scope,
	// period, number) reports status.ErrConflict.
	InsertTicket(ctx context.Context, p InsertTicketParams) (*models.Ticket, error)
	// MarkTicketServed stamps the ticket served. Numbers that were never
	// issued are ignored so the serving desk can run ahead of bookings.
	MarkTicketServed(ctx context.Context, scopeID, period string, number int, servedAt time.Time) error
	// CancelTicket moves a waiting ticket to cancelled.
	CancelTicket(ctx context.Context, scopeID, period string, number int) error
	// CountServed returns how many tickets the scope completed in the
	// period.
	CountServed(ctx context.Context, scopeID, period string) (int, error)
	// TicketCounts returns per-status ticket totals for the period.
	TicketCounts(ctx context.Context, scopeID, period string) (map[string]int, error)
}

// MetricsStore reads and writes the single metrics row each scope owns.
type MetricsStore interface {
	// ReadMetrics returns the scope's state for the given period. A row
	// belonging to an older period reads as a fresh zero state; the next
	// write overwrites it.
	ReadMetrics(ctx context.Context, scope models.ServiceScope, period string) (*models.MetricsState, error)
	// WriteMetrics upserts the scope's metrics row for the period.
	WriteMetrics(ctx context.Context, scope models.ServiceScope, period string, state *models.MetricsState) error
	// ListMetrics returns every scope's state recorded for the period.
	ListMetrics(ctx context.Context, period string) ([]*models.MetricsState, error)
}

type Store interface {
	TicketStore
	MetricsStore
}

// PocketBaseStore implements Store on top of a core.App (the live app or a
// transaction handle).
type PocketBaseStore struct {
	app core.App
}

func NewPocketBase(app core.App) *PocketBaseStore {
	return &PocketBaseStore{app: app}
}

func (s *PocketBaseStore) MaxTicketNumber(ctx context.Context, scopeID, period string) (int, error) {
	var max int
	err := s.app.DB().
		NewQuery("SELECT COALESCE(MAX(number), 0) FROM tickets WHERE scope_id = {:scope} AND period = {:period}").
		Bind(dbx.Params{"scope": scopeID, "period": period}).
		WithContext(ctx).
		Row(&max)
	if err != nil {
		return 0, fmt.Errorf("max ticket number for %s/%s: %w", scopeID, period, err)
	}
	return max, nil
}

func (s *PocketBaseStore) InsertTicket(ctx context.Context, p InsertTicketParams) (*models.Ticket, error) {
	collection, err := s.app.FindCollectionByNameOrId(TicketsCollection)
	if err != nil {
		return nil, fmt.Errorf("tickets collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("tenant_id", p.Scope.TenantID)
	record.Set("server_id", p.Scope.ServerID)
	record.Set("scope_id", p.Scope.ID())
	record.Set("period", p.Period)
	record.Set("number", p.Number)
	record.Set("code", p.Code)
	record.Set("fee", p.Fee)
	record.Set("status", models.TicketStatusWaiting)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert ticket %s/%s #%d: %w", p.Scope.ID(), p.Period, p.Number, status.ErrConflict)
		}
		return nil, fmt.Errorf("insert ticket %s/%s #%d: %w", p.Scope.ID(), p.Period, p.Number, err)
	}

	return ticketFromRecord(record), nil
}

func (s *PocketBaseStore) MarkTicketServed(ctx context.Context, scopeID, period string, number int, servedAt time.Time) error {
	record, err := s.findTicket(scopeID, period, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark served %s/%s #%d: %w", scopeID, period, number, err)
	}

	record.Set("status", models.TicketStatusServed)
	record.Set("served_at", servedAt)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("mark served %s/%s #%d: %w", scopeID, period, number, err)
	}
	return nil
}

func (s *PocketBaseStore) CancelTicket(ctx context.Context, scopeID, period string, number int) error {
	record, err := s.findTicket(scopeID, period, number)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cancel %s/%s #%d: %w", scopeID, period, number, status.ErrTicketNotFound)
	}
	if err != nil {
		return fmt.Errorf("cancel %s/%s #%d: %w", scopeID, period, number, err)
	}

	if record.GetString("status") != models.TicketStatusWaiting {
		return fmt.Errorf("cancel %s/%s #%d (status %s): %w",
			scopeID, period, number, record.GetString("status"), status.ErrTicketNotCancellable)
	}

	record.Set("status", models.TicketStatusCancelled)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("cancel %s/%s #%d: %w", scopeID, period, number, err)
	}
	return nil
}

func (s *PocketBaseStore) CountServed(ctx context.Context, scopeID, period string) (int, error) {
	var count int
	err := s.app.DB().
		NewQuery("SELECT COUNT(*) FROM tickets WHERE scope_id = {:scope} AND period = {:period} AND status = {:status}").
		Bind(dbx.Params{"scope": scopeID, "period": period, "status": models.TicketStatusServed}).
		WithContext(ctx).
		Row(&count)
	if err != nil {
		return 0, fmt.Errorf("count served for %s/%s: %w", scopeID, period, err)
	}
	return count, nil
}

func (s *PocketBaseStore) TicketCounts(ctx context.Context, scopeID, period string) (map[string]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	err := s.app.DB().
		NewQuery("SELECT status, COUNT(*) AS total FROM tickets WHERE scope_id = {:scope} AND period = {:period} GROUP BY status").
		Bind(dbx.Params{"scope": scopeID, "period": period}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("ticket counts for %s/%s: %w", scopeID, period, err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

func (s *PocketBaseStore) ReadMetrics(ctx context.Context, scope models.ServiceScope, period string) (*models.MetricsState, error) {
	record, err := s.app.FindFirstRecordByFilter(MetricsCollection,
		"scope_id = {:scope}", dbx.Params{"scope": scope.ID()})
	if errors.Is(err, sql.ErrNoRows) {
		return freshState(scope, period), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics for %s: %w", scope.ID(), err)
	}

	// A row left over from a previous service day reads as day-zero state.
	if record.GetString("period") != period {
		return freshState(scope, period), nil
	}
	return stateFromRecord(record), nil
}

func (s *PocketBaseStore) WriteMetrics(ctx context.Context, scope models.ServiceScope, period string, state *models.MetricsState) error {
	record, err := s.app.FindFirstRecordByFilter(MetricsCollection,
		"scope_id = {:scope}", dbx.Params{"scope": scope.ID()})
	if errors.Is(err, sql.ErrNoRows) {
		collection, cerr := s.app.FindCollectionByNameOrId(MetricsCollection)
		if cerr != nil {
			return fmt.Errorf("metrics collection: %w", cerr)
		}
		record = core.NewRecord(collection)
		record.Set("scope_id", scope.ID())
		record.Set("tenant_id", scope.TenantID)
		record.Set("server_id", scope.ServerID)
	} else if err != nil {
		return fmt.Errorf("write metrics for %s: %w", scope.ID(), err)
	}

	record.Set("period", period)
	record.Set("now_serving_token", state.NowServingToken)
	record.Set("avg_service_seconds", state.AvgServiceSeconds)
	record.Set("breaking_entity_id", state.BreakingEntityID)
	setNullableDate(record, "service_start_at", state.ServiceStartAt)
	setNullableDate(record, "active_clock_at", state.ActiveClockAt)
	setNullableDate(record, "break_started_at", state.BreakStartedAt)
	setNullableDate(record, "break_until", state.BreakUntil)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("write metrics for %s: %w", scope.ID(), err)
	}
	return nil
}

func (s *PocketBaseStore) ListMetrics(ctx context.Context, period string) ([]*models.MetricsState, error) {
	records, err := s.app.FindRecordsByFilter(MetricsCollection,
		"period = {:period}", "scope_id", 500, 0, dbx.Params{"period": period})
	if err != nil {
		return nil, fmt.Errorf("list metrics for %s: %w", period, err)
	}

	states := make([]*models.MetricsState, 0, len(records))
	for _, record := range records {
		states = append(states, stateFromRecord(record))
	}
	return states, nil
}

func (s *PocketBaseStore) findTicket(scopeID, period string, number int) (*core.Record, error) {
	return s.app.FindFirstRecordByFilter(TicketsCollection,
		"scope_id = {:scope} && period = {:period} && number = {:number}",
		dbx.Params{"scope": scopeID, "period": period, "number": number})
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:        record.Id,
		TenantID:  record.GetString("tenant_id"),
		ServerID:  record.GetString("server_id"),
		ScopeID:   record.GetString("scope_id"),
		Period:    record.GetString("period"),
		Number:    record.GetInt("number"),
		Code:      record.GetString("code"),
		Fee:       record.GetString("fee"),
		Status:    record.GetString("status"),
		CreatedAt: record.GetDateTime("created").Time(),
	}
	if served := record.GetDateTime("served_at"); !served.IsZero() {
		at := served.Time()
		t.ServedAt = &at
	}
	return t
}

func stateFromRecord(record *core.Record) *models.MetricsState {
	state := &models.MetricsState{
		ScopeID:           record.GetString("scope_id"),
		TenantID:          record.GetString("tenant_id"),
		ServerID:          record.GetString("server_id"),
		Period:            record.GetString("period"),
		NowServingToken:   record.GetInt("now_serving_token"),
		AvgServiceSeconds: record.GetFloat("avg_service_seconds"),
		BreakingEntityID:  record.GetString("breaking_entity_id"),
	}
	state.ServiceStartAt = nullableDate(record, "service_start_at")
	state.ActiveClockAt = nullableDate(record, "active_clock_at")
	state.BreakStartedAt = nullableDate(record, "break_started_at")
	state.BreakUntil = nullableDate(record, "break_until")
	return state
}

func freshState(scope models.ServiceScope, period string) *models.MetricsState {
	return &models.MetricsState{
		ScopeID:  scope.ID(),
		TenantID: scope.TenantID,
		ServerID: scope.ServerID,
		Period:   period,
	}
}

func setNullableDate(record *core.Record, field string, t *time.Time) {
	if t == nil {
		record.Set(field, "")
		return
	}
	record.Set(field, *t)
}

func nullableDate(record *core.Record, field string) *time.Time {
	dt := record.GetDateTime(field)
	if dt.IsZero() {
		return nil
	}
	t := dt.Time()
	return &t
}

// isUniqueViolation matches both the SQLite constraint error and the
// PocketBase unique-index validation error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
