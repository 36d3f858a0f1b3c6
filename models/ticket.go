package models

import (
	"time"
)

const (
	TicketStatusWaiting   = "waiting"
	TicketStatusServing   = "serving"
	TicketStatusServed    = "served"
	TicketStatusCancelled = "cancelled"
)

type Ticket struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	ServerID  string     `json:"server_id,omitempty"`
	ScopeID   string     `json:"scope_id"`
	Period    string     `json:"period"` // YYYY-MM-DD service day
	Number    int        `json:"number"`
	Code      string     `json:"code"`
	Fee       string     `json:"fee"`
	Status    string     `json:"status"` // waiting, serving, served, cancelled
	CreatedAt time.Time  `json:"created_at"`
	ServedAt  *time.Time `json:"served_at,omitempty"`
}
