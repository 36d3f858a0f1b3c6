package models

// DailyStats summarizes one scope's service day for reporting dashboards.
// CancellationRate is a fixed two-decimal percentage string so clients never
// see float noise.
type DailyStats struct {
	ScopeID           string  `json:"scope_id"`
	Period            string  `json:"period"`
	Issued            int     `json:"issued"`
	Served            int     `json:"served"`
	Cancelled         int     `json:"cancelled"`
	QueueDepth        int     `json:"queue_depth"`
	CancellationRate  string  `json:"cancellation_rate"`
	AvgServiceSeconds float64 `json:"avg_service_seconds"`
}
