package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/interview-auth/internal/kvstore"
)

const lockoutKeyPrefix = "lockout:"

// LockoutTracker counts consecutive failed logins per principal
type LockoutTracker struct {
	store  kvstore.Store
	window time.Duration
}

// NewLockoutTracker creates a tracker whose counters expire after window
func NewLockoutTracker(store kvstore.Store, window time.Duration) *LockoutTracker {
	return &LockoutTracker{store: store, window: window}
}

// RegisterFailure records a failed login and returns the failure count in the window
func (t *LockoutTracker) RegisterFailure(ctx context.Context, principalID string) (int, error) {
	key := lockoutKeyPrefix + principalID

	count, err := t.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to count login failure: %w", err)
	}

	if count == 1 {
		if err := t.store.Expire(ctx, key, t.window); err != nil {
			_ = t.store.Delete(ctx, key)
			return 0, fmt.Errorf("failed to set failure window: %w", err)
		}
	}

	return int(count), nil
}

// Reset clears the failure counter of a principal
func (t *LockoutTracker) Reset(ctx context.Context, principalID string) error {
	if err := t.store.Delete(ctx, lockoutKeyPrefix+principalID); err != nil {
		return fmt.Errorf("failed to reset login failures: %w", err)
	}
	return nil
}
