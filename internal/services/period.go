package services

import "time"

// periodLayout renders a service day as YYYY-MM-DD.
const periodLayout = "2006-01-02"

// PeriodOf returns the service day the instant falls in, reckoned in the
// engine's configured zone. Ticket numbering and metrics reset at this
// boundary.
func PeriodOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(periodLayout)
}
