// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_sync_runs_total",
			Help: "Total number of sync runs by terminal state",
		},
		[]string{"platform", "state"}, // "completed", "failed"
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelscout_sync_run_duration_seconds",
			Help:    "Wall-clock duration of sync runs",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
		[]string{"platform"},
	)

	SyncActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelscout_sync_active_runs",
			Help: "Number of sync runs currently in a non-terminal state",
		},
	)

	SyncDiffTitles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelscout_sync_diff_titles",
			Help: "Title counts from the most recent diff",
		},
		[]string{"platform", "kind"}, // "added", "removed", "retained"
	)

	CatalogSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelscout_catalog_titles",
			Help: "Number of titles in the last committed snapshot",
		},
		[]string{"platform"},
	)

	MissingTitles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelscout_missing_titles",
			Help: "Number of titles without a confident rating match",
		},
		[]string{"platform"},
	)

	// Enrichment metrics
	EnrichmentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_enrichment_results_total",
			Help: "Enrichment outcomes by confidence",
		},
		[]string{"confidence"}, // "EXACT_ID", "TITLE_YEAR", "NONE", "failed", "cached"
	)

	// Source request metrics
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_source_requests_total",
			Help: "Outbound requests to external sources",
		},
		[]string{"source", "outcome"}, // "ok", "miss", "transient", "permanent"
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelscout_source_request_duration_seconds",
			Help:    "Latency of outbound source requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_source_retries_total",
			Help: "Retries issued after transient source failures",
		},
		[]string{"source"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelscout_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_cache_lookups_total",
			Help: "Rating lookup cache hits and misses",
		},
		[]string{"result"}, // "hit", "miss", "expired"
	)

	CacheCommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelscout_cache_commit_duration_seconds",
			Help:    "Duration of the atomic snapshot commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheCompactedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_cache_compacted_rows_total",
			Help: "Rows removed by cache compaction",
		},
		[]string{"table"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelscout_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelscout_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
