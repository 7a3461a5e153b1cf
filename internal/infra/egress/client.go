package egress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"planet-cf/internal/resilience/circuitbreaker"
)

const (
	// maxRedirects caps the redirect chain length for a single fetch.
	maxRedirects = 10

	// maxRetryAfter caps how far into the future an upstream Retry-After
	// header may push the next attempt. Anything larger is treated as this.
	maxRetryAfter = 24 * time.Hour

	// errorBodyDrainLimit bounds how much of a non-2xx body is drained
	// before the connection is released back to the pool.
	errorBodyDrainLimit = 4 << 10
)

// ErrBodyTooLarge is returned when a response body exceeds the configured
// byte cap. The fetch is abandoned rather than truncated: a truncated feed
// document would parse as a different (smaller) feed.
var ErrBodyTooLarge = errors.New("response body too large")

// ClientConfig tunes the hardened feed-fetching client.
type ClientConfig struct {
	// Timeout is the per-request wall-clock budget (connect through body).
	Timeout time.Duration
	// UserAgent is sent on every request. Build it with UserAgent so feed
	// operators can identify and contact this aggregator.
	UserAgent string
	// MaxBodyBytes caps the decoded response body size.
	MaxBodyBytes int64
}

// DefaultClientConfig returns the production defaults: 30 second request
// budget and a 10 MiB body cap.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      30 * time.Second,
		UserAgent:    UserAgent("dev", "", ""),
		MaxBodyBytes: 10 << 20,
	}
}

// UserAgent builds the descriptive, contactable User-Agent string:
//
//	Planet-CF/1.4.0 (+https://planet.example.org; admin@example.org)
//
// Empty fields are omitted; an empty version falls back to "dev".
func UserAgent(version, publicURL, adminEmail string) string {
	if version == "" {
		version = "dev"
	}
	contact := make([]string, 0, 2)
	if publicURL != "" {
		contact = append(contact, "+"+publicURL)
	}
	if adminEmail != "" {
		contact = append(contact, adminEmail)
	}
	ua := "Planet-CF/" + version
	if len(contact) > 0 {
		ua += " (" + strings.Join(contact, "; ") + ")"
	}
	return ua
}

// FetchRequest describes one conditional GET of a feed document.
// ETag and LastModified carry the validators stored from the previous
// successful fetch, verbatim; empty means "no validator".
type FetchRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// FetchResult is the outcome of a completed HTTP exchange. The client
// reports every HTTP status as a result, not an error; classifying 4xx/5xx
// into retry policy is the caller's concern. Errors are reserved for
// transport failures, policy rejections, and oversized bodies.
type FetchResult struct {
	StatusCode int
	// Body is the full decoded body for 2xx responses, nil otherwise.
	Body []byte
	// ETag and LastModified are the validators from this response, verbatim.
	ETag         string
	LastModified string
	// FinalURL is the URL that produced the response, after redirects.
	FinalURL string
	// PermanentRedirect is true when any hop in the redirect chain was a
	// 301 or 308, signalling that the stored feed URL should be rewritten
	// to FinalURL once the fetch succeeds.
	PermanentRedirect bool
	// RetryAfter is the parsed Retry-After delay for 429/503 responses,
	// zero when absent or unparseable.
	RetryAfter time.Duration
}

// Client performs gatekeeper-checked conditional GETs for feed documents.
// The underlying transport is shared across fetches for connection pooling;
// redirect bookkeeping is per-call. A per-host circuit breaker turns fetches
// against a repeatedly failing host into immediate errors. Safe for
// concurrent use.
type Client struct {
	cfg       ClientConfig
	transport http.RoundTripper
	breakers  *circuitbreaker.HostBreakers
	// checkURL is IsSafeURL in production; tests point it at a relaxed
	// predicate so httptest servers on loopback are reachable.
	checkURL func(string) error
}

// NewClient builds a Client with pooled connections and TLS 1.2+ enforced.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultClientConfig().MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultClientConfig().UserAgent
	}
	return &Client{
		cfg:      cfg,
		checkURL: IsSafeURL,
		breakers: circuitbreaker.NewHostBreakers(),
		transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// Fetch performs one conditional GET. Every redirect hop is passed through
// the gatekeeper, permanent redirects (301/308) are recorded, and the final
// URL is re-validated before the body is read. The caller is expected to
// have gatekeeper-checked the starting URL already; Fetch checks it again
// as a defense against call sites that forget.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if err := c.checkURL(req.URL); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept",
		"application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}

	// Redirect state is per-call, so each fetch gets its own http.Client
	// around the shared transport.
	permanent := false
	client := &http.Client{
		Timeout:   c.cfg.Timeout,
		Transport: c.transport,
		CheckRedirect: func(next *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if err := c.checkURL(next.URL.String()); err != nil {
				return err
			}
			// next.Response is the redirect response that produced this hop.
			if resp := next.Response; resp != nil {
				if resp.StatusCode == http.StatusMovedPermanently ||
					resp.StatusCode == http.StatusPermanentRedirect {
					permanent = true
				}
			}
			return nil
		},
	}

	// The exchange runs through the per-host circuit breaker: once a host's
	// circuit is open, its remaining feeds fail immediately instead of each
	// waiting out the timeout. HTTP error statuses never count against the
	// breaker because they are returned as results, not errors.
	fetched, err := c.breakers.Do(httpReq.URL.Hostname(), func() (interface{}, error) {
		return client.Do(httpReq)
	})
	if err != nil {
		// CheckRedirect rejections surface wrapped in *url.Error; unwrap
		// stays intact for errors.Is(err, ErrUnsafeURL).
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	resp := fetched.(*http.Response)
	defer func() { _ = resp.Body.Close() }()

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if err := c.checkURL(finalURL); err != nil {
		return nil, err
	}

	result := &FetchResult{
		StatusCode:        resp.StatusCode,
		ETag:              resp.Header.Get("ETag"),
		LastModified:      resp.Header.Get("Last-Modified"),
		FinalURL:          finalURL,
		PermanentRedirect: permanent,
	}
	if resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusServiceUnavailable {
		result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := c.readBody(resp.Body)
		if err != nil {
			return nil, err
		}
		result.Body = body
		return result, nil
	}

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyDrainLimit))
	return result, nil
}

// readBody reads at most MaxBodyBytes. The limit is set one byte past the
// cap so an over-limit body is detected rather than silently truncated.
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	limited := &io.LimitedReader{R: r, N: c.cfg.MaxBodyBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("Fetch: read body: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.cfg.MaxBodyBytes)
	}
	return data, nil
}

// parseRetryAfter interprets a Retry-After header value as a delay from
// now. Both forms from RFC 9110 are accepted: delta-seconds and HTTP-date.
// Unparseable or past values yield zero; the result is capped at
// maxRetryAfter.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return capRetryAfter(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(header); err == nil {
		return capRetryAfter(t.Sub(now))
	}
	return 0
}

func capRetryAfter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
