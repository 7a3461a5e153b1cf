// Package slo defines the service level objectives for the public read
// surface and publishes gauges tracking them.
//
// The metrics middleware feeds every finished request into the default
// Tracker; the api binary folds the counters into the gauges once a
// minute. Alerting compares the gauges against the targets below.
package slo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the planet's read path. Pages and feeds render
// straight out of Postgres; search carries an embedding round trip, so
// the tail latency budget is wider than the median would suggest.
const (
	// AvailabilitySLO is the target share of requests answered without a
	// server error (99.9% allows roughly 43 minutes of bad traffic per month).
	AvailabilitySLO = 99.9

	// LatencyP95SLO is the p95 latency target in seconds.
	LatencyP95SLO = 0.300

	// LatencyP99SLO is the p99 latency target in seconds.
	LatencyP99SLO = 1.0

	// ErrorRateSLO is the maximum acceptable ratio of 5xx responses (0.5%).
	ErrorRateSLO = 0.005
)

// Gauges updated from the Tracker on each publish interval.
var (
	// SLOAvailability is the share of requests in the last interval that
	// did not end in a server error.
	SLOAvailability = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_availability_ratio",
			Help: "Share of requests without a 5xx response (0-1), target: 0.999",
		},
	)

	// SLOErrorRate is the share of requests in the last interval that
	// ended in a server error.
	SLOErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_error_rate_ratio",
			Help: "Share of requests with a 5xx response (0-1), target: <= 0.005",
		},
	)

	// SLOSlowRequests is the share of requests in the last interval that
	// ran past the p95 latency target.
	SLOSlowRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_slow_request_ratio",
			Help: "Share of requests slower than the p95 latency target (0-1), target: <= 0.05",
		},
	)
)

// Tracker accumulates request outcomes between publishes. The counters
// are atomics so the request hot path never takes a lock.
type Tracker struct {
	total  atomic.Uint64
	errors atomic.Uint64
	slow   atomic.Uint64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Default is the tracker fed by the HTTP metrics middleware.
var Default = NewTracker()

// Observe records one finished request on the default tracker.
func Observe(status int, duration time.Duration) {
	Default.Observe(status, duration)
}

// Observe records one finished request.
func (t *Tracker) Observe(status int, duration time.Duration) {
	t.total.Add(1)
	if status >= 500 {
		t.errors.Add(1)
	}
	if duration.Seconds() > LatencyP95SLO {
		t.slow.Add(1)
	}
}

// Publish folds the counters accumulated since the previous call into
// the gauges and resets them. A quiet interval reports a healthy
// service instead of leaving the gauges stale.
func (t *Tracker) Publish() {
	total := t.total.Swap(0)
	errors := t.errors.Swap(0)
	slow := t.slow.Swap(0)

	if total == 0 {
		SLOAvailability.Set(1)
		SLOErrorRate.Set(0)
		SLOSlowRequests.Set(0)
		return
	}

	SLOAvailability.Set(float64(total-errors) / float64(total))
	SLOErrorRate.Set(float64(errors) / float64(total))
	SLOSlowRequests.Set(float64(slow) / float64(total))
}

// PublishLoop publishes the default tracker on the given interval until
// ctx is canceled.
func PublishLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Default.Publish()
		}
	}
}
