package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testStore interface {
	ports.SharedStore
	ports.WindowCounter
}

type storeFactory func(t *testing.T) (testStore, func(time.Duration))

func newMiniredisStore(t *testing.T) (testStore, func(time.Duration)) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr.FastForward
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedMemoryStore(t *testing.T) (testStore, func(time.Duration)) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryStore(WithClock(clock.Now)), clock.Advance
}

func TestStores(t *testing.T) {
	factories := map[string]storeFactory{
		"redis":  newMiniredisStore,
		"memory": newClockedMemoryStore,
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, factory)
		})
	}
}

func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		s, _ := factory(t)
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("set with ttl expires", func(t *testing.T) {
		s, advance := factory(t)
		require.NoError(t, s.SetWithTTL(ctx, "captcha:1", "hash", 2*time.Second))

		val, err := s.Get(ctx, "captcha:1")
		require.NoError(t, err)
		assert.Equal(t, "hash", val)

		ttl, err := s.TTL(ctx, "captcha:1")
		require.NoError(t, err)
		assert.InDelta(t, 2*time.Second, ttl, float64(100*time.Millisecond))

		advance(3 * time.Second)
		_, err = s.Get(ctx, "captcha:1")
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = s.TTL(ctx, "captcha:1")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("incr keeps expiry", func(t *testing.T) {
		s, _ := factory(t)
		n, err := s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		ttl, err := s.TTL(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, ports.NoExpiry, ttl)

		require.NoError(t, s.Expire(ctx, "counter", time.Minute))
		n, err = s.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		ttl, err = s.TTL(ctx, "counter")
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Second)
	})

	t.Run("getdel consumes once", func(t *testing.T) {
		s, _ := factory(t)
		require.NoError(t, s.SetWithTTL(ctx, "captcha:2", "hash", time.Minute))

		val, err := s.GetDel(ctx, "captcha:2")
		require.NoError(t, err)
		assert.Equal(t, "hash", val)

		_, err = s.GetDel(ctx, "captcha:2")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("delete missing key is fine", func(t *testing.T) {
		s, _ := factory(t)
		assert.NoError(t, s.Delete(ctx, "nothing"))
	})

	t.Run("incr window arms and extends", func(t *testing.T) {
		s, advance := factory(t)
		window := 600 * time.Second

		n, ttl, err := s.IncrWindow(ctx, "login_fail:x", window, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		assert.Equal(t, window, ttl)

		advance(100 * time.Second)
		n, ttl, err = s.IncrWindow(ctx, "login_fail:x", window, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		assert.InDelta(t, 500*time.Second, ttl, float64(time.Second))

		n, ttl, err = s.IncrWindow(ctx, "login_fail:x", window, 3)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		assert.Equal(t, window, ttl)
	})

	t.Run("incr window repairs missing expiry", func(t *testing.T) {
		s, _ := factory(t)
		_, err := s.Incr(ctx, "rate_limit:login:x")
		require.NoError(t, err)

		n, ttl, err := s.IncrWindow(ctx, "rate_limit:login:x", time.Minute, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("incr on non integer fails", func(t *testing.T) {
		s, _ := factory(t)
		require.NoError(t, s.SetWithTTL(ctx, "text", "abc", time.Minute))
		_, err := s.Incr(ctx, "text")
		assert.Error(t, err)
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client)
	mr.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	_, err = s.Incr(ctx, "k")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	_, _, err = s.IncrWindow(ctx, "k", time.Minute, 0)
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), core.ErrStoreUnavailable)
}

func TestMemoryStoreSweep(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.SetWithTTL(ctx, k, "1", time.Second))
	}
	require.NoError(t, s.SetWithTTL(ctx, "keep", "1", time.Hour))
	assert.Equal(t, 4, s.Len())

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}
