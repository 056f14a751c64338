package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter throttles mutating operator calls (check-in, approve/reject)
// with a fixed window counter in Redis, keyed per operator so one noisy
// terminal cannot starve the rest.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
	}
}

// Allow consumes one slot for key. Returns ErrRateLimited when the window
// is exhausted. Redis being down never blocks operators: admission control
// matters more than throttling.
func (r *RateLimiter) Allow(ctx context.Context, key string) error {
	counterKey := fmt.Sprintf("ratelimit:%s", key)

	// The window claim carries the expiry, so dying between the claim and
	// the count can never leave a counter that outlives its window.
	r.redis.SetNX(ctx, counterKey, 0, r.window)

	count, err := r.redis.Incr(ctx, counterKey).Result()
	if err != nil {
		return nil
	}
	if count > int64(r.limit) {
		return ErrRateLimited
	}
	return nil
}
