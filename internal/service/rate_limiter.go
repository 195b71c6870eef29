package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/kvstore"
)

// RateLimiter implements fixed window counters on the shared store
type RateLimiter struct {
	store kvstore.Store
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(store kvstore.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// RateLimitKey builds the counter key for a scope and client
func RateLimitKey(scope, client string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, client)
}

// CheckAndIncrement counts one request against key.
// Returns true while the count within the window is at most limit.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.store.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	if count == 1 {
		if err := r.store.Expire(ctx, key, window); err != nil {
			// A counter without expiry would block the client forever.
			_ = r.store.Delete(ctx, key)
			return false, fmt.Errorf("failed to set rate window: %w", err)
		}
	}

	return count <= int64(limit), nil
}
