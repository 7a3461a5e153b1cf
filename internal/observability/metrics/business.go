package metrics

import (
	"fmt"
	"time"
)

// RecordFeedFetch records metrics for one successfully processed feed job:
// the end-to-end duration and the breakdown of entries written.
func RecordFeedFetch(feedID int64, duration time.Duration, itemsFound, inserted, updated int64) {
	id := fmt.Sprintf("%d", feedID)
	FeedFetchDuration.WithLabelValues(id).Observe(duration.Seconds())

	if inserted > 0 {
		EntriesUpsertedTotal.WithLabelValues(id, "inserted").Add(float64(inserted))
	}
	if updated > 0 {
		EntriesUpsertedTotal.WithLabelValues(id, "updated").Add(float64(updated))
	}
}

// RecordFeedFetchError records a classified feed fetch failure.
// errorType mirrors the pipeline's error taxonomy (transport, http_error,
// rate_limited, parse_fatal, ...).
func RecordFeedFetchError(feedID int64, errorType string) {
	FeedFetchErrors.WithLabelValues(
		fmt.Sprintf("%d", feedID),
		errorType,
	).Inc()
}

// RecordEntryIndexed records the result of one entry vector index attempt.
func RecordEntryIndexed(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	EntriesIndexedTotal.WithLabelValues(status).Inc()
}

// RecordJobOutcome records how one queue message was settled.
// Outcome is one of: acked, dropped, retried, dead_lettered, unsettled.
func RecordJobOutcome(outcome string) {
	JobsSettledTotal.WithLabelValues(outcome).Inc()
}

// RecordFeedDeactivated records one automatic feed deactivation.
func RecordFeedDeactivated() {
	FeedsDeactivatedTotal.Inc()
}

// RecordRender records one rendered output document.
// Format is one of: html, atom, rss, opml.
func RecordRender(format string, duration time.Duration) {
	RenderDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordSearch records one similarity search request. Status is "success"
// for a served result set, "degraded" when the search fell back to an
// empty result, and "invalid" for rejected queries.
func RecordSearch(status string, duration time.Duration) {
	SearchRequestsTotal.WithLabelValues(status).Inc()
	SearchDuration.Observe(duration.Seconds())
}

// RecordRetentionSweep records one full retention sweep and the rows it
// removed.
func RecordRetentionSweep(duration time.Duration, entriesDeleted, vectorsDeleted int64) {
	RetentionSweepDuration.Observe(duration.Seconds())
	if entriesDeleted > 0 {
		RetentionDeletedTotal.WithLabelValues("entries").Add(float64(entriesDeleted))
	}
	if vectorsDeleted > 0 {
		RetentionDeletedTotal.WithLabelValues("vectors").Add(float64(vectorsDeleted))
	}
}

// UpdateFeedsTotal updates the total count of feeds in the database.
// This gauge should be updated periodically to reflect the current state.
func UpdateFeedsTotal(count int) {
	FeedsTotal.Set(float64(count))
}

// UpdateEntriesTotal updates the total count of entries in the database.
// This gauge should be updated periodically to reflect the current state.
func UpdateEntriesTotal(count int) {
	EntriesTotal.Set(float64(count))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_entries", "upsert_entry").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
