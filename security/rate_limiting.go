package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"queue-system/internal/status"
	"queue-system/monitoring"
)

// RateLimiter throttles ticket creation per client using a fixed window in
// Redis: INCR on a windowed key, EXPIRE on the first hit. Redis being down
// fails open so an infra outage never stops the queue.
type RateLimiter struct {
	redis  *redis.Client
	window time.Duration
	max    int
}

func NewRateLimiter(redisClient *redis.Client, window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 30
	}
	return &RateLimiter{redis: redisClient, window: window, max: max}
}

// Allow reports whether the client identified by key may proceed. It
// returns status.ErrRateLimited when the window budget is spent; any Redis
// error is swallowed into an allow.
func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := r.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		// Fail open.
		slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, redisKey, r.window)
	}
	if count > int64(r.max) {
		monitoring.TrackRateLimited()
		return fmt.Errorf("%w: %s over %d requests per %s", status.ErrRateLimited, key, r.max, r.window)
	}
	return nil
}
