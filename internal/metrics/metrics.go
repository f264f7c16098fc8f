// Package metrics provides Prometheus instrumentation for the match
// worker. It exposes counters for request outcomes and matches, a gauge
// for queue depth, and histograms for processing latency, time-to-match
// and score distribution.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts processed match requests, labeled by result:
	// "handled", "failed", or "poison".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchworker_requests_total",
		Help: "Total number of match requests processed",
	}, []string{"result"})

	// MatchesTotal counts successfully committed matches.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchworker_matches_total",
		Help: "Total number of committed matches",
	})

	// MatchFailuresTotal counts match attempts that found no partner,
	// labeled by reason: "no_candidate", "incompatible", "below_threshold",
	// or "commit_failed".
	MatchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchworker_match_failures_total",
		Help: "Total number of unsuccessful match attempts",
	}, []string{"reason"})

	// TimeoutsTotal counts searches that hit the max wait time.
	TimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matchworker_timeouts_total",
		Help: "Total number of searches expired by timeout",
	})

	// ErrorsTotal counts errors by type: "poison", "commit_failed",
	// "dead_letter", "rate_limited", "circuit_open".
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matchworker_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type"})

	// QueueSize tracks the waiting-list depth observed at each attempt.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matchworker_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ProcessingLatency records per-message processing latency in seconds.
	ProcessingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchworker_processing_latency_seconds",
		Help:    "Match request processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// MatchDuration records the time from search start to committed match.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchworker_match_duration_seconds",
		Help:    "Time from search start to committed match",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 150},
	})

	// CompatibilityScore records the score distribution of committed matches.
	CompatibilityScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchworker_compatibility_score",
		Help:    "Compatibility score of committed matches",
		Buckets: []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1},
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		MatchesTotal,
		MatchFailuresTotal,
		TimeoutsTotal,
		ErrorsTotal,
		QueueSize,
		ProcessingLatency,
		MatchDuration,
		CompatibilityScore,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
