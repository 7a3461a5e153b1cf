// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	// HTTPRequestsInFlight tracks requests currently being served
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)
)

// Ingestion metrics track the fetch pipeline
var (
	// FeedsTotal tracks total number of feeds in the database
	FeedsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeds_total",
			Help: "Total number of feeds in the database",
		},
	)

	// EntriesTotal tracks total number of entries in the database
	EntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "entries_total",
			Help: "Total number of entries in the database",
		},
	)

	// FeedFetchDuration measures time to fetch and process one feed
	FeedFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Time taken to fetch and process a feed",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"feed_id"},
	)

	// FeedFetchErrors counts errors during feed fetching
	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetch_errors_total",
			Help: "Total number of feed fetch errors",
		},
		[]string{"feed_id", "error_type"},
	)

	// EntriesUpsertedTotal counts entries written per feed by operation
	EntriesUpsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_upserted_total",
			Help: "Total number of entries written to the database",
		},
		[]string{"feed_id", "op"}, // op: inserted, updated
	)

	// EntriesIndexedTotal counts entry vector indexing attempts by status
	EntriesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entries_indexed_total",
			Help: "Total number of entry embedding index attempts",
		},
		[]string{"status"}, // status: success, failure
	)

	// JobsSettledTotal counts queue messages by settlement outcome
	JobsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_settled_total",
			Help: "Total number of fetch jobs settled",
		},
		[]string{"outcome"}, // outcome: acked, dropped, retried, dead_lettered, unsettled
	)

	// FeedsDeactivatedTotal counts feeds auto-deactivated for failing
	FeedsDeactivatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeds_deactivated_total",
			Help: "Total number of feeds deactivated after repeated failures",
		},
	)

	// QueueDepth tracks the number of jobs waiting per queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs waiting in each queue",
		},
		[]string{"queue"}, // queue: ready, delayed, dead
	)
)

// Serving metrics track the read-side surfaces
var (
	// RenderDuration measures time to render an output document
	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Time taken to render an output document",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"format"}, // format: html, atom, rss, opml
	)

	// SearchRequestsTotal counts similarity searches by status
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of similarity search requests",
		},
		[]string{"status"}, // status: success, degraded, invalid
	)

	// SearchDuration measures end-to-end similarity search duration
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Similarity search duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
)

// Retention metrics track the sweep that bounds table growth
var (
	// RetentionDeletedTotal counts rows removed by the retention sweep
	RetentionDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deleted_total",
			Help: "Total number of rows deleted by the retention sweep",
		},
		[]string{"kind"}, // kind: entries, vectors
	)

	// RetentionSweepDuration measures one full retention sweep
	RetentionSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retention_sweep_duration_seconds",
			Help:    "Time taken by one retention sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
