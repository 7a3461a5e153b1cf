package worker

import (
	"planet-cf/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the scheduler worker. It
// embeds ConfigMetrics for configuration monitoring and adds metrics for the
// cron tick that enqueues due feeds.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Worker-specific metrics:
//   - worker_cron_job_runs_total: Ticks by status (success/failure)
//   - worker_cron_job_duration_seconds: Tick duration histogram
//   - worker_cron_job_feeds_processed_total: Feeds enqueued across all ticks
//   - worker_cron_job_last_success_timestamp: Unix timestamp of the last good tick
type WorkerMetrics struct {
	*config.ConfigMetrics

	// CronJobRunsTotal counts ticks by status ("success" or "failure").
	CronJobRunsTotal *prometheus.CounterVec

	// CronJobDurationSeconds is the tick duration histogram. Buckets reach
	// 30m because the retention sweep dominates; the enqueue fan-out itself
	// finishes in seconds.
	CronJobDurationSeconds prometheus.Histogram

	// CronJobFeedsProcessedTotal counts feeds enqueued, summed over ticks.
	CronJobFeedsProcessedTotal prometheus.Counter

	// CronJobLastSuccessTimestamp is the Unix timestamp of the last
	// successful tick. Its age is what alerting watches: a scheduler that
	// is up but stuck stops advancing it.
	CronJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a WorkerMetrics instance with all metrics
// initialized. promauto registers them with the default registry at
// construction time, so this must run once per process.
//
// Example:
//
//	metrics := NewWorkerMetrics()
//	metrics.MustRegister()
//
//	start := time.Now()
//	stats, err := svc.EnqueueDueFeeds(ctx)
//	metrics.RecordJobDuration(time.Since(start).Seconds())
//	if err != nil {
//	    metrics.RecordJobRun("failure")
//	} else {
//	    metrics.RecordJobRun("success")
//	    metrics.RecordFeedsProcessed(stats.Enqueued)
//	    metrics.RecordLastSuccess()
//	}
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		CronJobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of cron job runs by status (success/failure)",
		}, []string{"status"}),

		CronJobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of cron job execution in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800}, // 1s, 5s, 30s, 1m, 5m, 15m, 30m
		}),

		CronJobFeedsProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_feeds_processed_total",
			Help: "Total number of feeds enqueued across all cron job runs",
		}),

		CronJobLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful cron job run",
		}),
	}
}

// MustRegister is a no-op kept for the explicit two-step initialization
// pattern at the call sites; promauto already registered everything in
// NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {
	// No-op: metrics are auto-registered via promauto
}

// RecordJobRun increments the tick counter for the given status, either
// "success" or "failure".
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.CronJobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes one tick's duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.CronJobDurationSeconds.Observe(seconds)
}

// RecordFeedsProcessed adds the number of feeds enqueued by one tick.
func (m *WorkerMetrics) RecordFeedsProcessed(count int) {
	m.CronJobFeedsProcessedTotal.Add(float64(count))
}

// RecordLastSuccess stamps the last-success gauge with the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.CronJobLastSuccessTimestamp.SetToCurrentTime()
}
