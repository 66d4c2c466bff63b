package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/layer-3/loginguard/ports"
)

type RateLimitConfig struct {
	Name   string // Label used in logs and metrics
	Prefix string
	Limit  int
	Window time.Duration
}

func LoginRateLimit(limit int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{Name: "login", Prefix: "rate_limit:login:", Limit: limit, Window: window}
}

func ChallengeRateLimit(limit int, window time.Duration) RateLimitConfig {
	return RateLimitConfig{Name: "captcha", Prefix: "rate_limit:captcha:", Limit: limit, Window: window}
}

// RateLimiter is a fixed-window request limiter keyed by client fingerprint.
// When the shared store fails it keeps limiting per instance on the
// fallback store.
type RateLimiter struct {
	store    ports.SharedStore
	fallback ports.SharedStore
	cfg      RateLimitConfig
	deps
}

// NewRateLimiter creates a limiter. fallback may be nil, in which case
// requests are admitted while the shared store is down.
func NewRateLimiter(store, fallback ports.SharedStore, cfg RateLimitConfig, opts ...Option) (*RateLimiter, error) {
	if store == nil {
		return nil, errors.New("shared store is required")
	}
	if cfg.Prefix == "" || cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: rate limit %q needs a prefix, limit and window", core.ErrConfiguration, cfg.Name)
	}
	return &RateLimiter{store: store, fallback: fallback, cfg: cfg, deps: newDeps(opts)}, nil
}

// Admit counts one request for fingerprint and returns the window state
func (r *RateLimiter) Admit(ctx context.Context, fingerprint string) core.RateWindow {
	key := r.cfg.Prefix + fingerprint
	now := r.now()

	storeCtx, cancel := r.withStoreTimeout(ctx)
	count, ttl, err := incrWindow(storeCtx, r.store, key, r.cfg.Window, 0)
	cancel()

	degraded := false
	if err != nil {
		degraded = true
		r.logger.WarnContext(ctx, "rate limiter store unavailable, using local window",
			"limiter", r.cfg.Name, "error", err, "degraded", true)
		if r.fallback == nil {
			r.metrics.StoreDegraded("rate_limiter_"+r.cfg.Name, "fail_open")
			return core.RateWindow{
				Allowed:   true,
				Limit:     r.cfg.Limit,
				Remaining: r.cfg.Limit,
				ResetAt:   now.Add(r.cfg.Window),
				Degraded:  true,
			}
		}
		r.metrics.StoreDegraded("rate_limiter_"+r.cfg.Name, "fallback")
		count, ttl, err = incrWindow(ctx, r.fallback, key, r.cfg.Window, 0)
		if err != nil {
			return core.RateWindow{Allowed: true, Limit: r.cfg.Limit, Remaining: r.cfg.Limit, ResetAt: now.Add(r.cfg.Window), Degraded: true}
		}
	}
	if ttl <= 0 {
		ttl = r.cfg.Window
	}

	window := core.RateWindow{
		Allowed:   count <= int64(r.cfg.Limit),
		Limit:     r.cfg.Limit,
		Count:     int(count),
		Remaining: max(0, r.cfg.Limit-int(count)),
		ResetAt:   now.Add(ttl),
		Degraded:  degraded,
	}
	r.metrics.RateLimitDecision(r.cfg.Name, window.Allowed)
	if !window.Allowed {
		r.logger.InfoContext(ctx, "rate limit exceeded",
			"limiter", r.cfg.Name, "count", count, "retry_after", ttl)
	}
	return window
}

// Reset clears the window of fingerprint on the shared store
func (r *RateLimiter) Reset(ctx context.Context, fingerprint string) error {
	storeCtx, cancel := r.withStoreTimeout(ctx)
	defer cancel()
	return r.store.Delete(storeCtx, r.cfg.Prefix+fingerprint)
}

// Name of the limiter
func (r *RateLimiter) Name() string {
	return r.cfg.Name
}
