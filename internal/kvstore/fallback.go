package kvstore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// FallbackFunc observes a primary store failure for operation op
type FallbackFunc func(ctx context.Context, op string)

// FallbackStore routes operations to primary and switches to a secondary store
// for any call the primary fails. Reads also consult the secondary on a miss so
// entries written during an outage stay visible after the primary recovers.
type FallbackStore struct {
	primary    Store
	secondary  Store
	logger     *zap.Logger
	onFallback FallbackFunc
}

var _ Store = (*FallbackStore)(nil)

// NewFallbackStore creates a store that degrades from primary to secondary
func NewFallbackStore(primary, secondary Store, logger *zap.Logger, onFallback FallbackFunc) *FallbackStore {
	if onFallback == nil {
		onFallback = func(context.Context, string) {}
	}
	return &FallbackStore{
		primary:    primary,
		secondary:  secondary,
		logger:     logger,
		onFallback: onFallback,
	}
}

func (s *FallbackStore) degrade(ctx context.Context, op, key string, err error) {
	s.logger.Warn("Primary key-value store unavailable, using in-process fallback",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
	s.onFallback(ctx, op)
}

// Incr increments key on the primary, or on the fallback when the primary fails
func (s *FallbackStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.primary.Incr(ctx, key)
	if err == nil {
		return n, nil
	}
	s.degrade(ctx, "incr", key, err)
	return s.secondary.Incr(ctx, key)
}

// Expire sets a ttl on key in whichever store holds it. When the primary fails
// and the fallback does not hold the key the primary error is returned, so the
// caller never mistakes a counter left without expiry for success.
func (s *FallbackStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	primaryErr := s.primary.Expire(ctx, key, ttl)
	if primaryErr != nil && !errors.Is(primaryErr, ErrNotFound) {
		s.degrade(ctx, "expire", key, primaryErr)
	}

	// Keys may live in the fallback after an outage.
	secondaryErr := s.secondary.Expire(ctx, key, ttl)

	switch {
	case primaryErr == nil, secondaryErr == nil:
		return nil
	case errors.Is(primaryErr, ErrNotFound):
		return secondaryErr
	default:
		return primaryErr
	}
}

// Get returns the value at key from whichever store holds it
func (s *FallbackStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.primary.Get(ctx, key)
	if err == nil {
		return val, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.degrade(ctx, "get", key, err)
	}
	return s.secondary.Get(ctx, key)
}

// GetDel takes the value at key from whichever store holds it
func (s *FallbackStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := s.primary.GetDel(ctx, key)
	if err == nil {
		_ = s.secondary.Delete(ctx, key)
		return val, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.degrade(ctx, "getdel", key, err)
	}
	return s.secondary.GetDel(ctx, key)
}

// Set stores value at key
func (s *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.primary.Set(ctx, key, value, ttl); err != nil {
		s.degrade(ctx, "set", key, err)
		return s.secondary.Set(ctx, key, value, ttl)
	}
	return nil
}

// SetNX claims key unless either store already holds it
func (s *FallbackStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	// A claim made during an outage lives only in the fallback.
	if held, err := s.secondary.Exists(ctx, key); err == nil && held {
		return false, nil
	}

	ok, err := s.primary.SetNX(ctx, key, value, ttl)
	if err == nil {
		return ok, nil
	}
	s.degrade(ctx, "setnx", key, err)
	return s.secondary.SetNX(ctx, key, value, ttl)
}

// Exists reports whether either store holds key
func (s *FallbackStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.primary.Exists(ctx, key)
	if err != nil {
		s.degrade(ctx, "exists", key, err)
	} else if ok {
		return true, nil
	}
	return s.secondary.Exists(ctx, key)
}

// Delete removes key from both stores
func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if err != nil {
		s.degrade(ctx, "delete", key, err)
	}
	return s.secondary.Delete(ctx, key)
}
