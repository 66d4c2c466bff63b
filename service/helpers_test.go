package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/loginguard/adapters/store"
	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *store.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, store.NewRedisStore(client)
}

// recordingRenderer remembers the solutions it was asked to draw
type recordingRenderer struct {
	mu        sync.Mutex
	solutions []string
}

func (r *recordingRenderer) Render(solution string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solutions = append(r.solutions, solution)
	return "data:image/png;base64,stub", nil
}

func (r *recordingRenderer) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.solutions[len(r.solutions)-1]
}

// brokenStore fails every call as an unreachable store would
type brokenStore struct{}

var errBroken = fmt.Errorf("%w: connection refused", core.ErrStoreUnavailable)

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", errBroken
}

func (brokenStore) SetWithTTL(context.Context, string, string, time.Duration) error {
	return errBroken
}

func (brokenStore) Incr(context.Context, string) (int64, error) {
	return 0, errBroken
}

func (brokenStore) Expire(context.Context, string, time.Duration) error {
	return errBroken
}

func (brokenStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errBroken
}

func (brokenStore) Delete(context.Context, string) error {
	return errBroken
}

func (brokenStore) GetDel(context.Context, string) (string, error) {
	return "", errBroken
}

var _ ports.SharedStore = brokenStore{}
