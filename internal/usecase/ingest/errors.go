// Package ingest implements the fetch pipeline: it consumes feed jobs from
// the queue, performs the guarded conditional fetch, parses and sanitizes
// the result, upserts entries, indexes their vectors, and maintains feed
// health. One job in, one settled outcome out.
package ingest

import (
	"fmt"
	"time"
)

// ErrorKind classifies a failed fetch job for retry policy, metrics, and
// the wide event's error_type field.
type ErrorKind string

const (
	// KindUnsafeURL means the gatekeeper rejected the feed URL or a
	// redirect hop. Never retried: the URL will not become safe.
	KindUnsafeURL ErrorKind = "unsafe_url"
	// KindTransport covers DNS, dial, TLS, and read failures.
	KindTransport ErrorKind = "transport"
	// KindRateLimited means the upstream answered 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindHTTPError covers unexpected response statuses (4xx/5xx).
	KindHTTPError ErrorKind = "http_error"
	// KindParseFatal means the body parsed to zero entries with a parse
	// error. Retried: transient truncation and deploy glitches heal.
	KindParseFatal ErrorKind = "parse_fatal"
	// KindStorageTransient covers entry/feed store failures mid-pipeline.
	KindStorageTransient ErrorKind = "storage_transient"
	// KindEmbeddingTransient marks per-entry vector indexing failures.
	// Never fails the message; carried for classification only.
	KindEmbeddingTransient ErrorKind = "embedding_transient"
	// KindTimeout means the per-message wall budget expired.
	KindTimeout ErrorKind = "timeout"
)

// FetchError is the classified failure of one fetch job. It decides how
// the message is settled: acked, retried with delay, or dead-lettered.
type FetchError struct {
	Kind ErrorKind
	Err  error
	// RetryAfter is the server-requested minimum delay (429/503 with a
	// Retry-After header); zero when the server did not send one.
	RetryAfter time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the job should be redelivered. Only unsafe
// URLs are terminal on first sight; everything else is assumed transient
// up to the attempt cap.
func (e *FetchError) Retryable() bool {
	return e.Kind != KindUnsafeURL
}

// RetryDelay returns the delay before the next attempt: at least base
// (the backoff schedule), stretched to the server's Retry-After when the
// server asked for more.
func (e *FetchError) RetryDelay(base time.Duration) time.Duration {
	if e.RetryAfter > base {
		return e.RetryAfter
	}
	return base
}

// fetchErr builds a FetchError wrapping err.
func fetchErr(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}
