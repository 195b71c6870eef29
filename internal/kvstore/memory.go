package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const defaultSweepEvery = 1024

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a bounded in-process Store. Expired entries are dropped lazily on
// read and by a sweep that runs when the arena is full or every sweepEvery writes.
// When still full after a sweep the entry closest to expiry is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	capacity   int
	sweepEvery int
	writes     int
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithSweepEvery sets how many writes trigger a full expiry sweep
func WithSweepEvery(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.sweepEvery = n
		}
	}
}

// NewMemoryStore creates an in-process store holding at most capacity keys
func NewMemoryStore(capacity int, opts ...MemoryOption) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	s := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		capacity:   capacity,
		sweepEvery: defaultSweepEvery,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of stored entries, including not yet swept expired ones
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Incr atomically increments the counter at key, keeping its expiry
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.lookup(key, now)
	var n int64
	if ok {
		var err error
		n, err = strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.put(key, e, now)
	return n, nil
}

// Expire sets a time to live on an existing key
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.lookup(key, now)
	if !ok {
		return ErrNotFound
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return nil
	}
	e.expiresAt = now.Add(ttl)
	s.entries[key] = e
	return nil
}

// Get returns the value stored at key
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, s.now())
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

// GetDel returns the value stored at key and deletes it
func (s *MemoryStore) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, s.now())
	if !ok {
		return "", ErrNotFound
	}
	delete(s.entries, key)
	return e.value, nil
}

// Set stores value at key with the given ttl
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.put(key, e, now)
	return nil
}

// SetNX stores value at key unless a live entry is already there
func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, ok := s.lookup(key, now); ok {
		return false, nil
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.put(key, e, now)
	return true, nil
}

// Exists reports whether key is present and unexpired
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key, s.now())
	return ok, nil
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// lookup returns the live entry at key, dropping it if expired. Caller holds mu.
func (s *MemoryStore) lookup(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// put writes an entry, making room first if needed. Caller holds mu.
func (s *MemoryStore) put(key string, e memoryEntry, now time.Time) {
	s.writes++
	if s.writes >= s.sweepEvery {
		s.sweep(now)
	}

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.capacity {
		s.sweep(now)
		if len(s.entries) >= s.capacity {
			s.evictSoonest()
		}
	}

	s.entries[key] = e
}

func (s *MemoryStore) sweep(now time.Time) {
	s.writes = 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

// evictSoonest drops the entry closest to expiry; entries without expiry go last.
func (s *MemoryStore) evictSoonest() {
	var (
		victim string
		best   time.Time
		found  bool
	)
	for k, e := range s.entries {
		if !found {
			victim, best, found = k, e.expiresAt, true
			continue
		}
		if e.expiresAt.IsZero() {
			continue
		}
		if best.IsZero() || e.expiresAt.Before(best) {
			victim, best = k, e.expiresAt
		}
	}
	if found {
		delete(s.entries, victim)
	}
}
