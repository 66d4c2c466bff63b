package ports

import (
	"context"
	"time"
)

// NoExpiry is returned by TTL for a key that exists without an expiry
const NoExpiry time.Duration = -1

// SharedStore is the ephemeral key-value store shared by every instance.
// Missing keys are reported as core.ErrNotFound; any other failure wraps
// core.ErrStoreUnavailable.
type SharedStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error

	// GetDel reads and removes a key in one atomic step
	GetDel(ctx context.Context, key string) (string, error)
}

// WindowCounter is an optional store capability: increment a counter and
// manage its expiry atomically. The expiry is set to window on the first
// increment, whenever the counter has no expiry, and when the new count
// reaches extendAt (extendAt <= 0 disables extension). It returns the new
// count and the remaining lifetime.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration, extendAt int64) (int64, time.Duration, error)
}

// Pinger is implemented by stores that can report their health
type Pinger interface {
	Ping(ctx context.Context) error
}
