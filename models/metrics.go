package models

import (
	"time"
)

// MetricsState is the per-scope service state, one row per scope. It is
// mutated only by the metrics engine; everything else reads snapshots.
// Period records which service day the row describes; a read for a newer
// period starts over from zero values.
type MetricsState struct {
	ScopeID           string     `json:"scope_id"`
	TenantID          string     `json:"tenant_id"`
	ServerID          string     `json:"server_id,omitempty"`
	Period            string     `json:"period,omitempty"`
	NowServingToken   int        `json:"now_serving_token"`
	ServiceStartAt    *time.Time `json:"service_start_at,omitempty"`
	AvgServiceSeconds float64    `json:"avg_service_seconds"`
	ActiveClockAt     *time.Time `json:"active_clock_at,omitempty"`
	BreakStartedAt    *time.Time `json:"break_started_at,omitempty"`
	BreakUntil        *time.Time `json:"break_until,omitempty"`
	BreakingEntityID  string     `json:"breaking_entity_id,omitempty"`
}

// OnBreak reports whether the scope is on break at the given instant. A
// break whose BreakUntil has already passed does not count.
func (m *MetricsState) OnBreak(now time.Time) bool {
	if m.BreakStartedAt == nil {
		return false
	}
	return !m.BreakExpired(now)
}

// BreakExpired reports whether an open break window has a BreakUntil in the
// past. Indefinite breaks (BreakUntil nil) never expire on their own.
func (m *MetricsState) BreakExpired(now time.Time) bool {
	return m.BreakStartedAt != nil && m.BreakUntil != nil && now.After(*m.BreakUntil)
}

// ClearBreak resets the three break fields.
func (m *MetricsState) ClearBreak() {
	m.BreakStartedAt = nil
	m.BreakUntil = nil
	m.BreakingEntityID = ""
}
