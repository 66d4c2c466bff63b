package service

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

// incrWindow increments key and manages its expiry with the WindowCounter
// rules. Stores without the capability get the same behavior from separate
// calls, which can race between instances.
func incrWindow(ctx context.Context, store ports.SharedStore, key string, window time.Duration, extendAt int64) (int64, time.Duration, error) {
	if wc, ok := store.(ports.WindowCounter); ok {
		return wc.IncrWindow(ctx, key, window, extendAt)
	}

	count, err := store.Incr(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 || (extendAt > 0 && count >= extendAt) {
		if err := store.Expire(ctx, key, window); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := store.TTL(ctx, key)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return count, 0, nil
	case err != nil:
		return 0, 0, err
	case ttl == ports.NoExpiry:
		if err := store.Expire(ctx, key, window); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}
