// Package tracing provides OpenTelemetry integration for the request
// path and the ingest pipeline.
//
// The package ships no exporter: spans are recorded through the global
// tracer provider, so without an SDK installed every span is a no-op.
// Deployments that want traces configure an OTLP exporter at startup
// and everything here lights up unchanged.
//
// Example usage:
//
//	import "planet-cf/internal/observability/tracing"
//
//	func handleJob(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "ingest.HandleMessage")
//	    defer span.End()
//	    // ... fetch, parse, store ...
//	}
package tracing
