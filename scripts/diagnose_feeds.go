// Standalone operator tool that probes every feed in the roster through the
// same hardened HTTP client the worker uses, so a feed that fails here fails
// for the worker too (and vice versa). Writes three reports into the current
// directory: a human-readable summary, a JSON dump, and a reviewable SQL
// script with suggested roster fixes.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run scripts/diagnose_feeds.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/infra/adapter/persistence/postgres"
	"planet-cf/internal/infra/db"
	"planet-cf/internal/infra/egress"
)

// FeedDiagnostic is the probe result for a single feed, paired with the
// stored health counters so the report can show where the database and the
// live probe disagree.
type FeedDiagnostic struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Status string `json:"status"` // "OK", "UNSAFE_URL", "TIMEOUT", "FETCH_ERROR", "BODY_TOO_LARGE", "HTTP_ERROR", "PARSE_ERROR", "EMPTY"

	HTTPCode     int    `json:"http_code,omitempty"`
	ItemCount    int    `json:"item_count"`
	NewestItem   string `json:"newest_item,omitempty"`
	FeedType     string `json:"feed_type,omitempty"`
	FeedVersion  string `json:"feed_version,omitempty"`
	FinalURL     string `json:"final_url,omitempty"`
	Moved        bool   `json:"moved"` // permanent redirect to FinalURL
	RetryAfter   string `json:"retry_after,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
	BodyBytes    int    `json:"body_bytes"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Stored health, straight from the feeds table.
	IsActive            bool   `json:"is_active"`
	ConsecutiveFailures int64  `json:"consecutive_failures"`
	StoredError         string `json:"stored_error,omitempty"`
	LastSuccessAt       string `json:"last_success_at,omitempty"`
}

func main() {
	database := db.Open()
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()

	ctx := context.Background()
	feeds, err := postgres.NewFeedRepo(database).List(ctx)
	if err != nil {
		log.Fatalf("failed to list feeds: %v", err)
	}
	if len(feeds) == 0 {
		log.Println("roster is empty, nothing to diagnose")
		return
	}

	clientConfig := egress.DefaultClientConfig()
	clientConfig.UserAgent = egress.UserAgent(
		os.Getenv("VERSION"), os.Getenv("PUBLIC_URL"), os.Getenv("ADMIN_EMAIL"))
	client := egress.NewClient(clientConfig)
	fp := gofeed.NewParser()

	log.Printf("diagnosing %d feeds...", len(feeds))

	diagnostics := make([]FeedDiagnostic, 0, len(feeds))
	for i, feed := range feeds {
		log.Printf("[%d/%d] %s", i+1, len(feeds), feed.URL)
		diagnostics = append(diagnostics, diagnoseFeed(ctx, client, fp, feed))

		// Be polite to upstreams
		time.Sleep(500 * time.Millisecond)
	}

	writeTextReport(diagnostics)
	writeJSONReport(diagnostics)
	writeSQLFixes(diagnostics)
}

// diagnoseFeed performs one unconditional fetch (no validators, so a healthy
// upstream answers 200 with a full body) and classifies the outcome.
func diagnoseFeed(ctx context.Context, client *egress.Client, fp *gofeed.Parser, feed *entity.Feed) FeedDiagnostic {
	diag := FeedDiagnostic{
		ID:                  feed.ID,
		Title:               feed.Title,
		URL:                 feed.URL,
		IsActive:            feed.IsActive,
		ConsecutiveFailures: feed.ConsecutiveFailures,
		StoredError:         feed.FetchError,
	}
	if feed.LastSuccessAt != nil {
		diag.LastSuccessAt = feed.LastSuccessAt.UTC().Format(time.RFC3339)
	}

	start := time.Now()
	res, err := client.Fetch(ctx, egress.FetchRequest{URL: feed.URL})
	diag.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		diag.ErrorMessage = err.Error()
		switch {
		case errors.Is(err, egress.ErrUnsafeURL):
			diag.Status = "UNSAFE_URL"
		case errors.Is(err, context.DeadlineExceeded):
			diag.Status = "TIMEOUT"
		case errors.Is(err, egress.ErrBodyTooLarge):
			diag.Status = "BODY_TOO_LARGE"
		default:
			diag.Status = "FETCH_ERROR"
		}
		return diag
	}

	diag.HTTPCode = res.StatusCode
	if res.PermanentRedirect && res.FinalURL != feed.URL {
		diag.Moved = true
		diag.FinalURL = res.FinalURL
	}
	if res.RetryAfter > 0 {
		diag.RetryAfter = res.RetryAfter.String()
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		diag.Status = "HTTP_ERROR"
		diag.ErrorMessage = fmt.Sprintf("HTTP %d", res.StatusCode)
		return diag
	}
	diag.BodyBytes = len(res.Body)

	// Same tolerance as the ingest pipeline: a document that yields at least
	// one item counts as parsed even when gofeed reports an error.
	parsed, parseErr := fp.ParseString(string(res.Body))
	if parseErr != nil && (parsed == nil || len(parsed.Items) == 0) {
		diag.Status = "PARSE_ERROR"
		preview := string(res.Body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		diag.ErrorMessage = fmt.Sprintf("%v (body starts: %s)", parseErr, preview)
		return diag
	}

	diag.FeedType = parsed.FeedType
	diag.FeedVersion = parsed.FeedVersion
	diag.ItemCount = len(parsed.Items)
	diag.NewestItem = newestItemTime(parsed.Items)

	if diag.ItemCount == 0 {
		diag.Status = "EMPTY"
		diag.ErrorMessage = "feed parsed but has no items"
		return diag
	}

	diag.Status = "OK"
	return diag
}

// newestItemTime returns the most recent published/updated timestamp across
// the items, RFC 3339, or empty when no item carries a parseable date.
func newestItemTime(items []*gofeed.Item) string {
	var newest time.Time
	for _, item := range items {
		if item == nil {
			continue
		}
		if item.PublishedParsed != nil && item.PublishedParsed.After(newest) {
			newest = *item.PublishedParsed
		}
		if item.UpdatedParsed != nil && item.UpdatedParsed.After(newest) {
			newest = *item.UpdatedParsed
		}
	}
	if newest.IsZero() {
		return ""
	}
	return newest.UTC().Format(time.RFC3339)
}

func writef(f *os.File, format string, args ...interface{}) error {
	_, err := fmt.Fprintf(f, format, args...)
	return err
}

func writeTextReport(diagnostics []FeedDiagnostic) {
	f, err := os.Create("feed_diagnostic_report.txt")
	if err != nil {
		log.Printf("failed to create report file: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close report file: %v", err)
		}
	}()

	if err := writef(f, "===============================================\n"); err != nil {
		log.Printf("failed to write report: %v", err)
		return
	}
	_ = writef(f, "Planet CF Feed Diagnostic Report\n")
	_ = writef(f, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	_ = writef(f, "Total Feeds: %d\n", len(diagnostics))
	_ = writef(f, "===============================================\n\n")

	statusCount := make(map[string]int)
	var okCount, brokenCount, recoveredCount int
	for _, d := range diagnostics {
		statusCount[d.Status]++
		if d.Status == "OK" {
			okCount++
			if !d.IsActive {
				recoveredCount++
			}
		} else {
			brokenCount++
		}
	}

	_ = writef(f, "SUMMARY:\n")
	_ = writef(f, "  ✅ Working: %d (%.1f%%)\n", okCount, float64(okCount)/float64(len(diagnostics))*100)
	_ = writef(f, "  ❌ Broken: %d (%.1f%%)\n", brokenCount, float64(brokenCount)/float64(len(diagnostics))*100)
	if recoveredCount > 0 {
		_ = writef(f, "  ♻️  Deactivated but working again: %d\n", recoveredCount)
	}
	_ = writef(f, "\nSTATUS BREAKDOWN:\n")
	for status, count := range statusCount {
		_ = writef(f, "  %s: %d\n", status, count)
	}
	_ = writef(f, "\n")

	if recoveredCount > 0 {
		_ = writef(f, "♻️  RECOVERED FEEDS (deactivated in the roster, but probing OK):\n")
		_ = writef(f, "-------------------------------------------\n")
		for _, d := range diagnostics {
			if d.Status == "OK" && !d.IsActive {
				_ = writef(f, "Feed: %s\n", d.Title)
				_ = writef(f, "  URL: %s\n", d.URL)
				_ = writef(f, "  Stored error: %s (after %d consecutive failures)\n", d.StoredError, d.ConsecutiveFailures)
				_ = writef(f, "  Probe: %s %s | Items: %d | Newest: %s\n", d.FeedType, d.FeedVersion, d.ItemCount, d.NewestItem)
				_ = writef(f, "\n")
			}
		}
		_ = writef(f, "\n")
	}

	_ = writef(f, "✅ WORKING FEEDS (%d):\n", okCount)
	_ = writef(f, "-------------------------------------------\n")
	for _, d := range diagnostics {
		if d.Status != "OK" {
			continue
		}
		_ = writef(f, "Feed: %s\n", d.Title)
		_ = writef(f, "  URL: %s\n", d.URL)
		_ = writef(f, "  Type: %s %s | Items: %d | Newest: %s\n", d.FeedType, d.FeedVersion, d.ItemCount, d.NewestItem)
		_ = writef(f, "  Response: %dms | HTTP: %d | Body: %d bytes\n", d.ResponseTime, d.HTTPCode, d.BodyBytes)
		if d.Moved {
			_ = writef(f, "  ⚠️  Moved permanently to: %s\n", d.FinalURL)
		}
		_ = writef(f, "\n")
	}

	_ = writef(f, "\n❌ BROKEN FEEDS (%d):\n", brokenCount)
	_ = writef(f, "-------------------------------------------\n")
	for _, d := range diagnostics {
		if d.Status == "OK" {
			continue
		}
		_ = writef(f, "Feed: %s\n", d.Title)
		_ = writef(f, "  URL: %s\n", d.URL)
		_ = writef(f, "  Status: %s | HTTP: %d | Response: %dms\n", d.Status, d.HTTPCode, d.ResponseTime)
		_ = writef(f, "  Error: %s\n", d.ErrorMessage)
		if d.RetryAfter != "" {
			_ = writef(f, "  Upstream asks to retry after: %s\n", d.RetryAfter)
		}
		_ = writef(f, "  Roster: active=%t | consecutive_failures=%d | last_success=%s\n",
			d.IsActive, d.ConsecutiveFailures, d.LastSuccessAt)
		_ = writef(f, "\n")
	}

	log.Println("✅ text report generated: feed_diagnostic_report.txt")
}

func writeJSONReport(diagnostics []FeedDiagnostic) {
	f, err := os.Create("feed_diagnostic_report.json")
	if err != nil {
		log.Printf("failed to create JSON report: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close JSON report file: %v", err)
		}
	}()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(diagnostics); err != nil {
		log.Printf("failed to write JSON report: %v", err)
		return
	}

	log.Println("✅ JSON report generated: feed_diagnostic_report.json")
}

// writeSQLFixes emits suggested roster updates. Nothing is applied
// automatically; the operator reviews the file and runs what makes sense.
func writeSQLFixes(diagnostics []FeedDiagnostic) {
	f, err := os.Create("feed_fixes.sql")
	if err != nil {
		log.Printf("failed to create SQL fixes file: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("failed to close SQL fixes file: %v", err)
		}
	}()

	_ = writef(f, "-- Suggested roster fixes, generated %s\n", time.Now().UTC().Format(time.RFC3339))
	_ = writef(f, "-- Review before running: nothing here is applied automatically.\n\n")

	hasMoved := false
	for _, d := range diagnostics {
		if !d.Moved {
			continue
		}
		if !hasMoved {
			_ = writef(f, "-- Feeds that moved permanently (worker rewrites these on its next\n")
			_ = writef(f, "-- successful fetch; running them now just saves a redirect per poll)\n")
			hasMoved = true
		}
		_ = writef(f, "UPDATE feeds SET url = '%s' WHERE id = %d; -- %s\n",
			strings.ReplaceAll(d.FinalURL, "'", "''"), d.ID, d.Title)
	}
	if hasMoved {
		_ = writef(f, "\n")
	}

	hasRecovered := false
	for _, d := range diagnostics {
		if d.Status != "OK" || d.IsActive {
			continue
		}
		if !hasRecovered {
			_ = writef(f, "-- Deactivated feeds that probe OK again\n")
			hasRecovered = true
		}
		_ = writef(f, "UPDATE feeds SET is_active = TRUE, consecutive_failures = 0, fetch_error = '' WHERE id = %d; -- %s\n",
			d.ID, d.Title)
	}
	if hasRecovered {
		_ = writef(f, "\n")
	}

	hasBroken := false
	for _, d := range diagnostics {
		if d.Status == "OK" || !d.IsActive {
			continue
		}
		if !hasBroken {
			_ = writef(f, "-- Active feeds that fail the probe (review and fix, or deactivate)\n")
			hasBroken = true
		}
		_ = writef(f, "UPDATE feeds SET is_active = FALSE WHERE id = %d; -- %s: %s\n",
			d.ID, d.Title, d.Status)
	}

	log.Println("✅ SQL fixes generated: feed_fixes.sql")
}
