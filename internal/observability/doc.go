// Package observability groups the monitoring infrastructure shared by
// the api and worker binaries: Prometheus metrics, SLO gauges, and
// OpenTelemetry tracing.
//
// Subpackages:
//   - metrics: Prometheus metrics registry and recorders for the pipeline
//   - slo: service level objective targets and the gauges tracking them
//   - tracing: OpenTelemetry span helpers and HTTP middleware
//
// Example usage:
//
//	import (
//	    "planet-cf/internal/observability/metrics"
//	    "planet-cf/internal/observability/tracing"
//	)
//
//	func handleJob(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "ingest.HandleMessage")
//	    defer span.End()
//
//	    metrics.RecordJobOutcome("acked")
//	}
package observability
