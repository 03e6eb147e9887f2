// Package metrics registers the Prometheus metrics used by the orchestration
// core. Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts orchestrated requests labelled by feature
	// (chat, research, contract_analysis, document_enhancement, generic)
	// and outcome ("success", "cached", "degraded", "error").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_requests_total",
			Help: "Total orchestrated AI requests by feature and outcome.",
		},
		[]string{"feature", "outcome"},
	)

	// ProviderAttemptDuration observes per-provider attempt latency in seconds,
	// labelled by provider and status ("success", "error").
	ProviderAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legalai_provider_attempt_duration_seconds",
			Help:    "Per-provider attempt duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// ProviderErrors counts provider failures labelled by provider and
	// error code (rate_limit, auth_error, token_limit, timeout, transport,
	// bad_response, general_error).
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_provider_errors_total",
			Help: "Total provider errors by error code.",
		},
		[]string{"provider", "code"},
	)

	// CacheHits counts cache hits labelled by tier ("persistent", "memory").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_cache_hits_total",
			Help: "Total cache hits by tier.",
		},
		[]string{"tier"},
	)

	// CacheMisses counts full cache misses (both tiers consulted, neither hit).
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "legalai_cache_misses_total",
			Help: "Total cache misses across both tiers.",
		},
	)

	// DegradedResponses counts synthesized degraded responses by error class.
	DegradedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_degraded_responses_total",
			Help: "Total degraded responses synthesized after provider exhaustion.",
		},
		[]string{"error_type"},
	)

	// QueueRunning tracks tasks currently admitted by the request queue.
	QueueRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "legalai_queue_running",
			Help: "Tasks currently running under the request queue.",
		},
	)

	// QueueWaiting tracks tasks waiting for queue admission.
	QueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "legalai_queue_waiting",
			Help: "Tasks waiting for request queue admission.",
		},
	)

	// TokensInput counts prompt tokens sent to providers.
	TokensInput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_tokens_input_total",
			Help: "Total prompt tokens sent to providers.",
		},
		[]string{"provider", "model"},
	)

	// TokensOutput counts completion tokens received from providers.
	TokensOutput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legalai_tokens_output_total",
			Help: "Total completion tokens received from providers.",
		},
		[]string{"provider", "model"},
	)
)
