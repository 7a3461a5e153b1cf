// Package retry implements exponential backoff with jitter for the
// aggregator's outbound calls.
//
// Two usage patterns share one schedule type. WithBackoff retries in
// place and is used where the wait is short, such as embeddings calls
// and the startup database ping. The fetch pipeline never parks a
// worker that way; it computes the next delivery time with BackoffDelay
// and hands the job back to the delay queue.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config is a backoff schedule. The zero value retries nothing useful;
// start from one of the preset constructors.
type Config struct {
	// MaxAttempts caps how many times the operation runs in total.
	MaxAttempts int

	// InitialDelay is the wait after the first failure.
	InitialDelay time.Duration

	// MaxDelay caps the grown delay.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failure.
	Multiplier float64

	// JitterFraction adds up to this fraction of the delay as random
	// slack (0.0 to 1.0), spreading out callers that fail in sync.
	JitterFraction float64
}

// DefaultConfig returns the general purpose schedule: three attempts
// over a few seconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// EmbeddingAPIConfig returns the schedule for embeddings calls. It
// starts slower than the default because the API rate limits before it
// fails hard, and every attempt costs money.
func EmbeddingAPIConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// DBConfig returns the schedule for the startup database ping. In
// compose deployments Postgres regularly finishes starting a few
// seconds after the binaries, so this one stretches further than the
// in-request schedules.
func DBConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// JobRetryConfig returns the backoff schedule for redelivering a failed
// fetch job through the delay queue. MaxAttempts is informational here;
// the queue enforces its own attempt cap.
func JobRetryConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   1 * time.Minute,
		MaxDelay:       15 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// WithBackoff runs fn until it succeeds, the error is hopeless, or the
// schedule is exhausted. Waits between attempts are cut short when ctx
// is done.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if !IsRetryable(err) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}

		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		delay := BackoffDelay(cfg, attempt-1)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}
}

// BackoffDelay returns the wait before the given zero-based attempt:
// InitialDelay * Multiplier^attempt, capped at MaxDelay, plus jitter.
// WithBackoff uses it between attempts; the queue calls it directly to
// timestamp a redelivery.
func BackoffDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	d := time.Duration(delay)
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return addJitter(d, cfg.JitterFraction)
}

// transientErrnos are the socket errors worth another attempt. All of
// them show up when a feed host or the database is briefly unreachable.
var transientErrnos = []error{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.ETIMEDOUT,
	syscall.ENETUNREACH,
}

// IsRetryable reports whether another attempt could plausibly succeed.
//
// Context errors mean the caller gave up, not the remote side, so they
// are final. Network timeouts and transient socket errors retry. HTTP
// statuses retry for the server-side family (5xx, 429, 408); client
// errors are final because the request itself is wrong.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return retryableStatus(httpErr.StatusCode)
	}

	return false
}

func retryableStatus(code int) bool {
	switch {
	case code >= 500 && code < 600:
		return true
	case code == http.StatusTooManyRequests:
		return true
	case code == http.StatusRequestTimeout:
		return true
	}
	return false
}

// HTTPError carries a status code through an error chain so the retry
// decision can tell server trouble from a request that is simply wrong.
// The embeddings adapter produces it from API error responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// addJitter adds up to fraction*d of random slack on top of d.
func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1.0 {
		fraction = 1.0
	}
	// #nosec G404 -- backoff jitter does not need crypto randomness
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
