package http

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"planet-cf/internal/handler/http/requestid"
	"planet-cf/internal/handler/http/respond"
	"planet-cf/internal/handler/http/responsewriter"

	"go.opentelemetry.io/otel/trace"
)

// Logging returns middleware that logs each request with structured fields:
// method, path, status, response size and duration. When the request carries
// an OpenTelemetry span the trace ID is included so log lines can be joined
// with distributed traces.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// ステータスとサイズを記録するためにラップ
			wrapped := responsewriter.Wrap(w)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			attrs := []slog.Attr{
				slog.String("request_id", requestid.FromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.Header.Get("User-Agent")),
				slog.Int("status", wrapped.StatusCode()),
				slog.Int("bytes", wrapped.BytesWritten()),
				slog.Duration("duration", duration),
			}

			// トレースがない場合はゼロIDを出さない
			if sc := trace.SpanFromContext(r.Context()).SpanContext(); sc.HasTraceID() {
				attrs = append(attrs, slog.String("trace_id", sc.TraceID().String()))
			}

			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		})
	}
}

// Recover returns middleware that catches panics, logs them with the stack
// trace, and turns them into a 500 response instead of killing the server.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.String("request_id", requestid.FromContext(r.Context())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)

					respond.SafeError(
						w,
						http.StatusInternalServerError,
						fmt.Errorf("internal error"),
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// cleanupMinInterval is how often the request path triggers a sweep of idle
// client records. The background cleanup goroutine runs on its own schedule.
const cleanupMinInterval = 10 * time.Minute

// requestRecord stores the request timestamps of one client IP.
//
// Timestamps are taken while holding mu, so the slice is always ordered and
// expired entries form a prefix.
type requestRecord struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// RateLimiter is sliding-window rate limiting middleware keyed by client IP.
type RateLimiter struct {
	records   sync.Map // map[string]*requestRecord
	limit     int      // 許可する最大リクエスト数
	window    time.Duration
	cleanMu   sync.Mutex
	lastClean time.Time
}

// NewRateLimiter returns a limiter that allows limit requests per window for
// each client IP (e.g. limit=100, window=time.Minute for 100 req/min).
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		lastClean: time.Now(),
	}
}

// Limit applies the rate limit to incoming requests. Rejected requests get a
// 429 with a Retry-After hint so well-behaved feed readers back off instead
// of retrying immediately.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)

		// 定期的に古いレコードをクリーンアップ（メモリリーク防止）
		rl.maybeSweep()

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", retryAfter)
			respond.SafeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow reports whether a request from ip is within the window, recording
// its timestamp when it is.
func (rl *RateLimiter) allow(ip string) bool {
	val, _ := rl.records.LoadOrStore(ip, &requestRecord{})
	record := val.(*requestRecord)

	record.mu.Lock()
	defer record.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// 窓から外れたタイムスタンプは先頭に連続して並んでいる
	stale := 0
	for stale < len(record.timestamps) && !record.timestamps[stale].After(cutoff) {
		stale++
	}
	if stale > 0 {
		n := copy(record.timestamps, record.timestamps[stale:])
		record.timestamps = record.timestamps[:n]
	}

	if len(record.timestamps) >= rl.limit {
		return false
	}

	record.timestamps = append(record.timestamps, now)
	return true
}

// maybeSweep runs a sweep when enough time has passed since the last one.
// The interval check is the only part under cleanMu; the sweep itself runs
// outside it so concurrent requests are not held up.
func (rl *RateLimiter) maybeSweep() {
	rl.cleanMu.Lock()
	if time.Since(rl.lastClean) < cleanupMinInterval {
		rl.cleanMu.Unlock()
		return
	}
	rl.lastClean = time.Now()
	rl.cleanMu.Unlock()

	rl.sweep()
}

// CleanupExpired removes records whose timestamps have all aged out of the
// window. Unlike maybeSweep it runs unconditionally; the background cleanup
// goroutine calls it on its own schedule.
func (rl *RateLimiter) CleanupExpired() {
	rl.sweep()
}

// sweep drops records that have been idle for at least twice the window.
func (rl *RateLimiter) sweep() {
	cutoff := time.Now().Add(-rl.window * 2)

	active := 0
	rl.records.Range(func(key, value interface{}) bool {
		record := value.(*requestRecord)

		record.mu.Lock()
		outdated := rl.isRecordOutdated(record, cutoff)
		record.mu.Unlock()

		if outdated {
			rl.records.Delete(key)
		} else {
			active++
		}
		return true
	})

	slog.Debug("rate limiter: cleanup completed",
		slog.Int("active_ips", active),
	)
}

// isRecordOutdated reports whether every timestamp in the record is older
// than the cutoff.
func (rl *RateLimiter) isRecordOutdated(record *requestRecord, cutoff time.Time) bool {
	for _, ts := range record.timestamps {
		if ts.After(cutoff) {
			return false
		}
	}
	return true
}

// extractIP extracts the client IP address from the HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func extractIP(r *http.Request) string {
	// X-Forwarded-For ヘッダーを優先（リバースプロキシ経由の場合）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	// X-Real-IP ヘッダーを確認
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}

	// RemoteAddr から取得（最後の手段）
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the leftmost address of a comma-separated list, the
// original client in an X-Forwarded-For chain.
func parseFirstIP(s string) string {
	first, _, _ := strings.Cut(s, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return ""
}
