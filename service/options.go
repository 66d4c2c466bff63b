package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/layer-3/loginguard/logger"
	"github.com/layer-3/loginguard/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStoreTimeout bounds every shared store call
const DefaultStoreTimeout = 2 * time.Second

const tracerName = "github.com/layer-3/loginguard/service"

// deps are the ambient dependencies every component carries
type deps struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	storeTimeout time.Duration
	now          func() time.Time
}

func newDeps(opts []Option) deps {
	d := deps{
		logger:       logger.Discard(),
		tracer:       otel.Tracer(tracerName),
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// withStoreTimeout derives the context for one store call
func (d deps) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.storeTimeout)
}

// Option configures the ambient dependencies of a service component
type Option func(*deps)

func WithLogger(l *slog.Logger) Option {
	return func(d *deps) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) {
		d.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(d *deps) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithStoreTimeout bounds each shared store call. Zero disables the bound.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(d *deps) {
		d.storeTimeout = timeout
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}
