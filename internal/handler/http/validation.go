package http

import (
	"net/http"
)

// InputValidation returns middleware that validates and limits request inputs.
// It enforces limits on:
// - URI path length (2KB)
// - query string length (4KB)
// - request body size (1MB)
//
// The public surface is read-only, so anything beyond these limits is junk
// traffic and gets rejected before reaching the handlers.
func InputValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Path length limit (2KB)
			// Prevents path traversal attacks and keeps URLs reasonable
			if len(r.URL.Path) > 2048 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestURITooLong)
				_, _ = w.Write([]byte(`{"error":"URI too long"}`))
				return
			}

			// Query string limit (4KB)
			// Search queries get embedded through a paid API, so the
			// input has to be bounded before it reaches the handler
			if len(r.URL.RawQuery) > 4096 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestURITooLong)
				_, _ = w.Write([]byte(`{"error":"query string too long"}`))
				return
			}

			// Request body size limit (1MB)
			// No route accepts a body; the cap keeps junk uploads cheap
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

			next.ServeHTTP(w, r)
		})
	}
}
