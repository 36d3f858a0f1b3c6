package models

import (
	"time"
)

// Snapshot is the wire payload pushed to subscribers on connect and on every
// state change, and returned by the one-shot snapshot endpoint. ViewerTicket
// and EstimatedWaitSeconds are present only for subscribers that registered
// with their own ticket number.
type Snapshot struct {
	ScopeID              string     `json:"scope_id"`
	NowServingToken      int        `json:"now_serving_token"`
	AvgServiceSeconds    float64    `json:"avg_service_seconds"`
	OnBreak              bool       `json:"on_break"`
	BreakUntil           *time.Time `json:"break_until"`
	ViewerTicket         *int       `json:"viewer_ticket,omitempty"`
	EstimatedWaitSeconds *int       `json:"estimated_wait_seconds,omitempty"`
}

// WithViewer returns a copy of the snapshot personalized for the holder of
// the given ticket number. The receiver is not modified, so a single
// scope-wide snapshot can be fanned out to many viewers.
func (s Snapshot) WithViewer(ticket, waitSeconds int) Snapshot {
	t := ticket
	w := waitSeconds
	s.ViewerTicket = &t
	s.EstimatedWaitSeconds = &w
	return s
}
