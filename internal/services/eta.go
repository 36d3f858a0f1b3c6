package services

import "math"

// EstimateWaitSeconds projects how long the holder of viewerTicket waits
// before being called: tickets still ahead of them times the running
// average. Viewers at or behind the serving token get 0, never a negative.
func EstimateWaitSeconds(viewerTicket, nowServing int, avgServiceSeconds float64) int {
	lag := viewerTicket - nowServing
	if lag <= 0 {
		return 0
	}
	return int(math.Round(float64(lag) * avgServiceSeconds))
}
