package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"planet-cf/internal/observability/metrics"
)

// TestNormalizePath tests the route allowlist that keeps metric label
// cardinality bounded.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "home page",
			path: "/",
			want: "/",
		},
		{
			name: "atom feed",
			path: "/feed.atom",
			want: "/feed.atom",
		},
		{
			name: "rss feed",
			path: "/feed.rss",
			want: "/feed.rss",
		},
		{
			name: "opml export",
			path: "/feeds.opml",
			want: "/feeds.opml",
		},
		{
			name: "search endpoint",
			path: "/search",
			want: "/search",
		},
		{
			name: "health endpoint",
			path: "/healthz",
			want: "/healthz",
		},
		{
			name: "scanner probing wordpress",
			path: "/wp-login.php",
			want: "/other",
		},
		{
			name: "scanner probing env files",
			path: "/.env",
			want: "/other",
		},
		{
			name: "deep unknown path",
			path: "/api/v1/users/123",
			want: "/other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsMiddleware_CardinalityReduction verifies that unknown paths
// collapse into a single metric label.
func TestMetricsMiddleware_CardinalityReduction(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Simulate scanner noise against paths that do not exist
	scannerPaths := []string{"/wp-login.php", "/admin", "/.git/config", "/phpmyadmin", "/api/token"}

	for _, path := range scannerPaths {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/other", "200"))
	if got != float64(len(scannerPaths)) {
		t.Errorf("requests under /other = %v, want %d", got, len(scannerPaths))
	}

	t.Logf("%d scanner paths recorded as a single /other series", len(scannerPaths))
}

// TestMetricsMiddleware_KnownRoutes verifies that the fixed route surface
// keeps its own labels.
func TestMetricsMiddleware_KnownRoutes(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))

	for _, path := range []string{"/", "/feed.atom", "/search", "/healthz"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", path, "200")); got != 1 {
			t.Errorf("requests for %s = %v, want 1", path, got)
		}
	}
}

// TestMetricsMiddleware_QueryParameters tests that query strings never
// leak into path labels.
func TestMetricsMiddleware_QueryParameters(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	paths := []string{
		"/search?q=go",
		"/search?q=go&limit=10",
		"/search?q=postgres+vacuum",
	}

	for _, path := range paths {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/search", "200"))
	if got != float64(len(paths)) {
		t.Errorf("requests under /search = %v, want %d", got, len(paths))
	}
}

// TestMetricsMiddleware_ActiveConnections tests that the connection gauge
// returns to its resting value after the request completes.
func TestMetricsMiddleware_ActiveConnections(t *testing.T) {
	metrics.ActiveConnections.Set(0)

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := testutil.ToFloat64(metrics.ActiveConnections); got != 1 {
			t.Errorf("active connections during request = %v, want 1", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := testutil.ToFloat64(metrics.ActiveConnections); got != 0 {
		t.Errorf("active connections after request = %v, want 0", got)
	}
}

// TestMetricsMiddleware_StatusCodes tests that different status codes are tracked correctly.
func TestMetricsMiddleware_StatusCodes(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	tests := []struct {
		name       string
		statusCode int
	}{
		{"success 200", http.StatusOK},
		{"bad request 400", http.StatusBadRequest},
		{"not found 404", http.StatusNotFound},
		{"server error 500", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			req := httptest.NewRequest("GET", "/search", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.statusCode {
				t.Errorf("Expected status %d, got %d", tt.statusCode, w.Code)
			}
		})
	}
}

// TestMetricsMiddleware_RequestSize tests that request size is tracked correctly.
func TestMetricsMiddleware_RequestSize(t *testing.T) {
	metrics.HTTPRequestSize.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Read body to simulate processing
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := strings.NewReader(`{"q":"distributed consensus"}`)
	req := httptest.NewRequest("POST", "/search", body)
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = int64(body.Len())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Request size should be tracked
	t.Logf("Request size tracked: %d bytes", req.ContentLength)
}

// TestMetricsMiddleware_ResponseSize tests that response size is tracked correctly.
func TestMetricsMiddleware_ResponseSize(t *testing.T) {
	metrics.HTTPResponseSize.Reset()

	responseBody := []byte(`{"results":[]}`)

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(responseBody)
	}))

	req := httptest.NewRequest("GET", "/search", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Body.Len() != len(responseBody) {
		t.Errorf("Expected response size %d, got %d", len(responseBody), w.Body.Len())
	}
}

func TestMetricsHandler(t *testing.T) {
	handler := MetricsHandler()

	if handler == nil {
		t.Fatal("MetricsHandler() returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status OK; got %v", rr.Code)
	}

	// Should contain prometheus metrics format
	body := rr.Body.String()
	if body == "" {
		t.Error("metrics endpoint returned empty body")
	}
}

// BenchmarkMetricsMiddleware benchmarks the middleware with the allowlist lookup.
func BenchmarkMetricsMiddleware(b *testing.B) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	paths := []string{
		"/",
		"/feed.atom",
		"/search",
		"/unknown/deep/path",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := paths[i%len(paths)]
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
	}
}
