// Package metrics holds the Prometheus instruments of the login gate.
// All methods are safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const namespace = "loginguard"

type Metrics struct {
	AuthOutcomes           *prometheus.CounterVec
	ChallengesIssued       prometheus.Counter
	ChallengeVerifications *prometheus.CounterVec
	FailuresRecorded       prometheus.Counter
	SourcesBlocked         prometheus.Counter
	RateLimitDecisions     *prometheus.CounterVec
	StoreDegradations      *prometheus.CounterVec
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AuthOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication attempts by outcome",
		}, []string{"outcome"}),
		ChallengesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_issued_total",
			Help:      "Visual challenges issued",
		}),
		ChallengeVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_verifications_total",
			Help:      "Challenge verifications by result",
		}, []string{"result"}),
		FailuresRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_recorded_total",
			Help:      "Failed attempts recorded against a source",
		}),
		SourcesBlocked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_blocked_total",
			Help:      "Failures that put a source at or over the block threshold",
		}),
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter admissions by limiter and result",
		}, []string{"limiter", "result"}),
		StoreDegradations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_degradations_total",
			Help:      "Shared store failures absorbed by a component error policy",
		}, []string{"component", "policy"}),
	}
}

// RegisterRedisPool exposes connection pool statistics as gauges read on scrape
func RegisterRedisPool(reg prometheus.Registerer, stats func() *redis.PoolStats) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "redis_pool_total_conns",
		Help:      "Number of total connections in the pool",
	}, func() float64 { return float64(stats().TotalConns) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "redis_pool_idle_conns",
		Help:      "Number of idle connections in the pool",
	}, func() float64 { return float64(stats().IdleConns) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "redis_pool_timeouts_total",
		Help:      "Number of times a connection was not obtained due to timeout",
	}, func() float64 { return float64(stats().Timeouts) })
}

func (m *Metrics) Outcome(kind string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChallengeIssued() {
	if m == nil {
		return
	}
	m.ChallengesIssued.Inc()
}

func (m *Metrics) ChallengeVerified(result string) {
	if m == nil {
		return
	}
	m.ChallengeVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) FailureRecorded(blocked bool) {
	if m == nil {
		return
	}
	m.FailuresRecorded.Inc()
	if blocked {
		m.SourcesBlocked.Inc()
	}
}

func (m *Metrics) RateLimitDecision(limiter string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	m.RateLimitDecisions.WithLabelValues(limiter, result).Inc()
}

// StoreDegraded counts a store failure handled by policy ("fail_open",
// "fail_closed" or "fallback")
func (m *Metrics) StoreDegraded(component, policy string) {
	if m == nil {
		return
	}
	m.StoreDegradations.WithLabelValues(component, policy).Inc()
}
