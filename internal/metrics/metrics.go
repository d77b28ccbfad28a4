package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vote ledger metrics
var (
	// VotesSubmittedTotal tracks vote submissions by outcome (created/updated/skipped/rejected)
	VotesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_submitted_total",
			Help: "Total vote submissions by outcome",
		},
		[]string{"outcome"},
	)

	// VotingEventsCreatedTotal tracks created voting events by permission tier
	VotingEventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voting_events_created_total",
			Help: "Total voting events created by permission tier",
		},
		[]string{"tier"},
	)

	// VotingEventsExpiredTotal tracks events flipped inactive by the lazy-expiration path
	VotingEventsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voting_events_expired_total",
			Help: "Total voting events flipped to inactive on read",
		},
	)
)

// Oracle metrics
var (
	// OracleRequestsTotal tracks social-graph oracle calls by check and status
	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_requests_total",
			Help: "Total social-graph oracle requests by check and status",
		},
		[]string{"check", "status"},
	)

	// OracleRequestDuration tracks oracle call latency in seconds
	OracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_request_duration_seconds",
			Help:    "Social-graph oracle request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"check"},
	)

	// OracleCacheHits tracks Redis oracle-cache hits and misses
	OracleCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_cache_hits_total",
			Help: "Oracle cache lookups by result (hit/miss/error)",
		},
		[]string{"result"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)

// Access control metrics
var (
	// AccessDecisionsTotal tracks can_view outcomes by permission tier and decision
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access control decisions by tier and decision",
		},
		[]string{"tier", "decision"},
	)

	// TokenRefreshesTotal tracks stored-credential refreshes by status
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Stored credential refreshes by status",
		},
		[]string{"status"},
	)
)
