// Package kvstore provides the shared key-value store used for revocation,
// counters, ephemeral one-shot tokens and CSRF bindings.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("key not found")

// Store is a TTL-aware key-value store. A zero ttl means no expiry.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	// Expire returns ErrNotFound when key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// GetDel returns the value and removes the key in one step.
	GetDel(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
