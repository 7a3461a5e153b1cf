// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics (duration, count, size)
//   - Ingestion metrics (feed fetches, entry upserts, vector indexing, job settlement)
//   - Serving metrics (render and search)
//   - Retention sweep metrics
//   - Database query metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "planet-cf/internal/observability/metrics"
//
//	func processFeed(feedID int64) {
//	    start := time.Now()
//	    // ... fetch and store entries ...
//
//	    metrics.RecordFeedFetch(feedID, time.Since(start), found, inserted, updated)
//	}
package metrics
