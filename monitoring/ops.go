package monitoring

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"queue-system/utils"
)

// NewOpsServer builds the sidecar HTTP server exposing liveness and
// Prometheus scrape endpoints, kept off the public API port. The caller
// starts and drains it.
func NewOpsServer(addr string, redisClient *redis.Client, enableMetrics bool) *http.Server {
	e := echo.New()

	e.GET("/healthz", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"redis":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"redis":  "up",
		})
	})

	if enableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	return &http.Server{Addr: addr, Handler: e}
}
