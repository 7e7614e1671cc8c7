package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window counter: INCR on a per-window key which
// expires together with the window.
type RateLimiter struct {
	cache  *Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per window per identifier.
func NewRateLimiter(cache *Cache, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{cache: cache, limit: limit, window: window, now: time.Now}
}

// Allow counts one request. remaining is never negative.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (allowed bool, remaining int, err error) {
	bucket := r.now().UnixNano() / int64(r.window)
	key := RateLimitKey(identifier, bucket)

	pipe := r.cache.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	return decide(incr.Val(), r.limit)
}

func decide(count int64, limit int) (bool, int, error) {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, nil
}
