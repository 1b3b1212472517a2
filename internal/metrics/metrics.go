// Package metrics exposes Prometheus collectors for the batch pipeline and
// the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logaware"

var (
	// BatchesTotal counts processed uploads by outcome (scored, cached, rejected, failed).
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of processed log batches by outcome.",
		},
		[]string{"outcome"},
	)

	// RecordsTotal counts scored log lines.
	RecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of log lines scored.",
		},
	)

	// AnomaliesTotal counts outliers flagged per engine.
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_outliers_total",
			Help:      "Total number of records flagged as outliers by engine.",
		},
		[]string{"engine"},
	)

	// EngineDurationSeconds is scoring latency per engine.
	EngineDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Engine scoring duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 10), // 5ms to ~19s
		},
		[]string{"engine"},
	)

	// CacheHitsTotal counts batch cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_cache_hits_total",
			Help:      "Total number of batch cache hits.",
		},
	)

	// CacheMissesTotal counts batch cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_cache_misses_total",
			Help:      "Total number of batch cache misses.",
		},
	)

	// CachedBatches is the number of batches currently held in memory.
	CachedBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_batches",
			Help:      "Number of scored batches held in the cache.",
		},
	)

	// HTTPRequestTotal counts requests by method, route and status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)
)

// Batch outcomes.
const (
	OutcomeScored   = "scored"
	OutcomeCached   = "cached"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)
