package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"github.com/redis/go-redis/v9"
)

// incrWindowScript increments KEYS[1] and (re)arms its expiry in one step.
// ARGV[1] is the window in milliseconds, ARGV[2] the count at which the
// expiry is re-armed (0 disables).
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local window = tonumber(ARGV[1])
local extendAt = tonumber(ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 or (extendAt > 0 and count >= extendAt) then
	redis.call('PEXPIRE', KEYS[1], window)
	ttl = window
end
return {count, ttl}
`)

// RedisStore is a Redis implementation of the SharedStore interface
type RedisStore struct {
	client redis.UniversalClient
}

var (
	_ ports.SharedStore   = (*RedisStore)(nil)
	_ ports.WindowCounter = (*RedisStore)(nil)
	_ ports.Pinger        = (*RedisStore)(nil)
)

// NewRedisStore creates a new Redis store on an existing client. The client
// is owned by the caller.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get retrieves a value by key
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", wrap("get", key, err)
	}
	return val, nil
}

// SetWithTTL stores a key with a value and expiration time
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

// Incr atomically increments a counter, creating it at 1
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap("incr", key, err)
	}
	return n, nil
}

// Expire sets the remaining lifetime of a key
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return wrap("expire", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a key
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, wrap("ttl", key, err)
	}
	switch ttl {
	case -2:
		return 0, fmt.Errorf("ttl %s: %w", key, core.ErrNotFound)
	case -1:
		return ports.NoExpiry, nil
	}
	return ttl, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return wrap("del", key, err)
	}
	return nil
}

// GetDel reads and removes a key with GETDEL
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		return "", wrap("getdel", key, err)
	}
	return val, nil
}

// IncrWindow runs the increment and expiry rules as a single server-side script
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration, extendAt int64) (int64, time.Duration, error) {
	res, err := incrWindowScript.Run(ctx, s.client, []string{key}, window.Milliseconds(), extendAt).Int64Slice()
	if err != nil {
		return 0, 0, wrap("incr window", key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: incr window %s: unexpected reply %v", core.ErrStoreUnavailable, key, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func wrap(op, key string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s %s: %w", op, key, core.ErrNotFound)
	}
	return fmt.Errorf("%w: %s %s: %v", core.ErrStoreUnavailable, op, key, err)
}
