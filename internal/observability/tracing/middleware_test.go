package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// installTestProvider routes the global tracer through an in-memory
// exporter for the duration of the test.
func installTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})
	return exporter
}

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_RecordsSpan(t *testing.T) {
	exporter := installTestProvider(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/search?q=zig", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "GET /search" {
		t.Errorf("span name = %q, want %q", span.Name, "GET /search")
	}

	if v, ok := findAttr(span.Attributes, "http.method"); !ok || v.AsString() != "GET" {
		t.Errorf("http.method attribute = %q, want GET", v.AsString())
	}
	if v, ok := findAttr(span.Attributes, "http.path"); !ok || v.AsString() != "/search" {
		t.Errorf("http.path attribute = %q, want /search", v.AsString())
	}
	if v, ok := findAttr(span.Attributes, "http.status_code"); !ok || v.AsInt64() != 200 {
		t.Errorf("http.status_code attribute = %d, want 200", v.AsInt64())
	}

	header := rr.Header().Get("X-Trace-Id")
	if header == "" {
		t.Fatal("expected X-Trace-Id header to be set")
	}
	if want := span.SpanContext.TraceID().String(); header != want {
		t.Errorf("X-Trace-Id = %q, want %q", header, want)
	}
}

func TestMiddleware_PropagatesIncomingTraceContext(t *testing.T) {
	exporter := installTestProvider(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	const incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-"+incomingTraceID+"-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != incomingTraceID {
		t.Errorf("trace ID = %q, want incoming %q", got, incomingTraceID)
	}
}

func TestMiddleware_MarksServerErrors(t *testing.T) {
	exporter := installTestProvider(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/feed.atom", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if v, ok := findAttr(span.Attributes, "http.status_code"); !ok || v.AsInt64() != 500 {
		t.Errorf("http.status_code attribute = %d, want 500", v.AsInt64())
	}
	if v, ok := findAttr(span.Attributes, "error"); !ok || !v.AsBool() {
		t.Error("expected error attribute for 5xx response")
	}
}

func TestMiddleware_NoErrorAttributeFor4xx(t *testing.T) {
	exporter := installTestProvider(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/notfound", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if _, ok := findAttr(spans[0].Attributes, "error"); ok {
		t.Error("unexpected error attribute for 4xx response")
	}
}

func TestMiddleware_SkipsOperationalEndpoints(t *testing.T) {
	exporter := installTestProvider(t)

	for _, path := range []string{"/healthz", "/readyz", "/livez", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			called := false
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if !called {
				t.Fatal("handler was not called")
			}
			if got := rr.Header().Get("X-Trace-Id"); got != "" {
				t.Errorf("X-Trace-Id = %q, want empty for %s", got, path)
			}
		})
	}

	if n := len(exporter.GetSpans()); n != 0 {
		t.Errorf("expected 0 spans for operational endpoints, got %d", n)
	}
}

func TestMiddleware_NoSDKOmitsTraceHeader(t *testing.T) {
	// Without an SDK the global tracer hands out no-op spans with a zero
	// trace ID, and the header must stay off.
	otel.SetTracerProvider(noop.NewTracerProvider())

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Trace-Id"); got != "" {
		t.Errorf("X-Trace-Id = %q, want empty without an SDK", got)
	}
}

func TestStatusRecorder_CapturesStatusCode(t *testing.T) {
	sr := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}

	if sr.status != http.StatusOK {
		t.Errorf("default status = %d, want 200", sr.status)
	}

	sr.WriteHeader(http.StatusCreated)

	if sr.status != http.StatusCreated {
		t.Errorf("status = %d, want 201", sr.status)
	}
}
