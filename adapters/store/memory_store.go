package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

const sweepInterval = time.Minute

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process SharedStore. It is not shared between
// instances; it backs the rate limiter fallback and unit tests.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

var (
	_ ports.SharedStore   = (*MemoryStore)(nil)
	_ ports.WindowCounter = (*MemoryStore)(nil)
)

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

// Get retrieves a value by key
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	return e.value, nil
}

// SetWithTTL stores a key with a value and expiration time
func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweep()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Incr atomically increments a counter, keeping its expiry
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.incr(key)
}

// Expire sets the remaining lifetime of a key
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.data[key] = e
	return nil
}

// TTL returns the remaining lifetime of a key
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return 0, fmt.Errorf("ttl %s: %w", key, core.ErrNotFound)
	}
	if e.expiresAt.IsZero() {
		return ports.NoExpiry, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

// Delete removes a key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// GetDel reads and removes a key
func (s *MemoryStore) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", fmt.Errorf("getdel %s: %w", key, core.ErrNotFound)
	}
	delete(s.data, key)
	return e.value, nil
}

// IncrWindow increments and re-arms the expiry under the store lock
func (s *MemoryStore) IncrWindow(_ context.Context, key string, window time.Duration, extendAt int64) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.incr(key)
	if err != nil {
		return 0, 0, err
	}
	e := s.data[key]
	if count == 1 || e.expiresAt.IsZero() || (extendAt > 0 && count >= extendAt) {
		e.expiresAt = s.now().Add(window)
		s.data[key] = e
	}
	return count, e.expiresAt.Sub(s.now()), nil
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]memoryEntry)
}

// Len returns the number of live keys
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	return len(s.data)
}

func (s *MemoryStore) incr(key string) (int64, error) {
	s.maybeSweep()
	e, ok := s.lookup(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %s: value is not an integer", key)
		}
		n = parsed
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.data[key] = e
	return n, nil
}

// lookup returns a live entry, dropping it if it has expired. Callers hold mu.
func (s *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) maybeSweep() {
	if s.now().Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.sweep()
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
	s.lastSweep = now
}
