package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

const failureKeyPrefix = "login_fail:"

type FailureConfig struct {
	Threshold int
	Window    time.Duration // Block window, measured from the failure that reaches Threshold
}

func DefaultFailureConfig() FailureConfig {
	return FailureConfig{Threshold: 5, Window: 600 * time.Second}
}

// FailureAccountant counts failed attempts per source. It fails open: when
// the store is unavailable sources are treated as unblocked and failures
// go uncounted.
type FailureAccountant struct {
	store ports.SharedStore
	cfg   FailureConfig
	deps
}

func NewFailureAccountant(store ports.SharedStore, cfg FailureConfig, opts ...Option) (*FailureAccountant, error) {
	if store == nil {
		return nil, errors.New("shared store is required")
	}
	if cfg.Threshold <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: failure threshold and window must be positive", core.ErrConfiguration)
	}
	return &FailureAccountant{store: store, cfg: cfg, deps: newDeps(opts)}, nil
}

// IsBlocked reports whether source has reached the failure threshold
func (a *FailureAccountant) IsBlocked(ctx context.Context, source string) bool {
	status, err := a.Status(ctx, source)
	if err != nil {
		a.logger.WarnContext(ctx, "failure counter unavailable, allowing attempt",
			"source", core.AnonymizeIP(source), "error", err, "degraded", true)
		a.metrics.StoreDegraded("failure_accountant", "fail_open")
		return false
	}
	if status.Blocked() {
		a.logger.InfoContext(ctx, "blocked source attempted login",
			"source", core.AnonymizeIP(source), "failures", status.Count, "retry_after", status.TTL)
	}
	return status.Blocked()
}

// RecordFailure counts one failure and reports whether source is now blocked
// together with the new count
func (a *FailureAccountant) RecordFailure(ctx context.Context, source string) (bool, int) {
	storeCtx, cancel := a.withStoreTimeout(ctx)
	defer cancel()

	count, ttl, err := incrWindow(storeCtx, a.store, failureKey(source), a.cfg.Window, int64(a.cfg.Threshold))
	if err != nil {
		a.logger.WarnContext(ctx, "failed to record failure",
			"source", core.AnonymizeIP(source), "error", err, "degraded", true)
		a.metrics.StoreDegraded("failure_accountant", "fail_open")
		return false, 0
	}

	blocked := count >= int64(a.cfg.Threshold)
	a.metrics.FailureRecorded(blocked)
	if blocked {
		a.logger.WarnContext(ctx, "source blocked",
			"source", core.AnonymizeIP(source), "failures", count, "block_for", ttl)
	}
	return blocked, int(count)
}

// Reset clears the failure count of source
func (a *FailureAccountant) Reset(ctx context.Context, source string) {
	storeCtx, cancel := a.withStoreTimeout(ctx)
	defer cancel()

	if err := a.store.Delete(storeCtx, failureKey(source)); err != nil {
		a.logger.WarnContext(ctx, "failed to reset failure counter",
			"source", core.AnonymizeIP(source), "error", err, "degraded", true)
		a.metrics.StoreDegraded("failure_accountant", "fail_open")
	}
}

// Status returns the current counter of source. The remaining lifetime is
// only looked up once the source is blocked.
func (a *FailureAccountant) Status(ctx context.Context, source string) (core.FailureCounter, error) {
	storeCtx, cancel := a.withStoreTimeout(ctx)
	defer cancel()

	counter := core.FailureCounter{Threshold: a.cfg.Threshold}
	key := failureKey(source)

	raw, err := a.store.Get(storeCtx, key)
	if errors.Is(err, core.ErrNotFound) {
		return counter, nil
	}
	if err != nil {
		return counter, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return counter, fmt.Errorf("malformed failure counter %q: %w", raw, err)
	}
	counter.Count = count

	if counter.Blocked() {
		ttl, err := a.store.TTL(storeCtx, key)
		switch {
		case errors.Is(err, core.ErrNotFound):
			return core.FailureCounter{Threshold: a.cfg.Threshold}, nil
		case err != nil:
			return counter, err
		case ttl > 0:
			counter.TTL = ttl
		}
	}
	return counter, nil
}

// RetryAfter reports how long source stays blocked, zero when it is not
func (a *FailureAccountant) RetryAfter(ctx context.Context, source string) time.Duration {
	status, err := a.Status(ctx, source)
	if err != nil || !status.Blocked() {
		return 0
	}
	return status.TTL
}

func failureKey(source string) string {
	return failureKeyPrefix + core.Fingerprint(source)
}
