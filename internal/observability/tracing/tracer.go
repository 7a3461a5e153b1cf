package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// scopeName identifies this module as the instrumentation scope on the
// spans it creates.
const scopeName = "planet-cf"

// GetTracer returns the tracer that spans in this process are created
// from. It resolves against the globally installed TracerProvider, so
// spans pick up whatever exporter main configured, or the no-op default
// in tests.
//
// Example:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "ingest.HandleMessage")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(scopeName)
}
