package http

import (
	"net/http"
	"strconv"
	"time"

	"planet-cf/internal/handler/http/responsewriter"
	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/observability/slo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// knownRoutes is the complete public surface. The route table is fixed,
// so path labels come from an allowlist: anything else is crawler and
// scanner noise that would otherwise blow up metric cardinality.
var knownRoutes = map[string]struct{}{
	"/":           {},
	"/feed.atom":  {},
	"/feed.rss":   {},
	"/feeds.opml": {},
	"/search":     {},
	"/healthz":    {},
	"/readyz":     {},
	"/livez":      {},
	"/metrics":    {},
}

// normalizePath maps a request path to its metric label. Unknown paths
// collapse into a single bucket.
func normalizePath(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "/other"
}

// MetricsMiddleware records request metrics on the shared registry:
// in-flight gauge, per-route request counts, duration, and request and
// response sizes. Paths are normalized through the route allowlist so
// label cardinality stays bounded no matter what clients ask for.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		metrics.ActiveConnections.Inc()
		defer metrics.ActiveConnections.Dec()

		normalizedPath := normalizePath(r.URL.Path)

		rw := responsewriter.Wrap(w)

		start := time.Now()
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		requestSize := 0
		if r.ContentLength > 0 {
			requestSize = int(r.ContentLength)
		}
		status := strconv.Itoa(rw.StatusCode())
		metrics.RecordHTTPRequest(r.Method, normalizedPath, status, duration, requestSize, rw.BytesWritten())
		slo.Observe(rw.StatusCode(), duration)
	})
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
