// Package render builds the public read surfaces: the aggregated HTML home
// page, the Atom and RSS syndication feeds, and the OPML subscription list.
// It is read-only over the stores; handlers serve its output verbatim.
package render

import (
	"strings"
	"time"

	"planet-cf/internal/repository"
)

// Config holds the presentation settings for the rendered surfaces.
type Config struct {
	// Title is the site title shown on every surface.
	Title string
	// PublicURL is the externally visible base URL, without a trailing
	// slash. Self links in the syndication feeds are built from it.
	PublicURL string
	// AdminEmail, when set, is advertised as the feed contact address.
	AdminEmail string
	// ContentDays is the home page display window in days.
	ContentDays int
	// FallbackEntries is how many entries the syndication feeds carry and
	// how many the home page falls back to when the window is empty.
	FallbackEntries int
	// Location is the timezone used to group entries by local date.
	Location *time.Location
}

// DefaultConfig returns the rendering defaults: a 7-day window, 50
// fallback entries, and UTC dates.
func DefaultConfig() Config {
	return Config{
		Title:           "Planet CF",
		PublicURL:       "http://localhost:8080",
		ContentDays:     7,
		FallbackEntries: 50,
		Location:        time.UTC,
	}
}

// Service renders the aggregated surfaces from the feed and entry stores.
//
// Example:
//
//	svc := render.NewService(feedRepo, entryRepo, render.DefaultConfig())
//	page, err := svc.RenderHome(ctx, time.Now())
type Service struct {
	FeedRepo  repository.FeedRepository
	EntryRepo repository.EntryRepository

	cfg Config
}

// NewService creates a render service.
//
// Parameters:
//   - feedRepo: feed roster store, read for the sidebar and OPML
//   - entryRepo: entry store, read for the page and syndication feeds
//   - cfg: presentation settings; zero fields fall back to DefaultConfig values
func NewService(feedRepo repository.FeedRepository, entryRepo repository.EntryRepository, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Title == "" {
		cfg.Title = def.Title
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = def.PublicURL
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.ContentDays <= 0 {
		cfg.ContentDays = def.ContentDays
	}
	if cfg.FallbackEntries <= 0 {
		cfg.FallbackEntries = def.FallbackEntries
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{FeedRepo: feedRepo, EntryRepo: entryRepo, cfg: cfg}
}

// entryTimestamp is the most recent instant an entry changed: its update
// time when the source published one, otherwise its publication time.
func entryTimestamp(e repository.EntryWithFeed) time.Time {
	if e.Entry.UpdatedAt != nil && e.Entry.UpdatedAt.After(e.Entry.PublishedAt) {
		return *e.Entry.UpdatedAt
	}
	return e.Entry.PublishedAt
}

// feedDisplayTitle returns the stored channel title, falling back to the
// subscription URL for feeds that have never been fetched.
func feedDisplayTitle(title, url string) string {
	if title != "" {
		return title
	}
	return url
}

// entryAuthor attributes an entry to its item author when the source named
// one, otherwise to the feed it came from.
func entryAuthor(e repository.EntryWithFeed) string {
	if e.Entry.Author != "" {
		return e.Entry.Author
	}
	return e.FeedTitle
}
