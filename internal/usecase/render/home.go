package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"planet-cf/internal/domain/entity"
	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/repository"
)

// Freshness buckets for the feed sidebar, derived from last_entry_at.
const (
	freshnessToday     = "today"
	freshnessThisWeek  = "this week"
	freshnessThisMonth = "this month"
	freshnessDormant   = "dormant"
	freshnessNever     = "no entries yet"
)

type homePage struct {
	Title       string
	GeneratedAt time.Time
	WindowDays  int
	Fallback    bool
	Days        []homeDay
	Feeds       []homeFeed
}

type homeDay struct {
	Date    time.Time
	Entries []homeEntry
}

type homeEntry struct {
	Title       string
	URL         string
	Author      string
	FeedTitle   string
	FeedSiteURL string
	// Content is sanitized at ingest time; the template injects it as-is.
	Content     template.HTML
	PublishedAt time.Time
}

type homeFeed struct {
	Title     string
	URL       string
	SiteURL   string
	Freshness string
	// CSS hook derived from the freshness bucket.
	FreshnessClass string
}

// RenderHome renders the aggregated home page: entries published within the
// display window grouped by local date, newest group first, plus a sidebar
// of active feeds annotated with how recently each one produced an entry.
// When the window holds nothing, the page falls back to the most recent
// entries overall so the site never renders empty while content exists.
func (s *Service) RenderHome(ctx context.Context, now time.Time) ([]byte, error) {
	start := time.Now()

	cutoff := now.Add(-time.Duration(s.cfg.ContentDays) * 24 * time.Hour)
	entries, err := s.EntryRepo.ListSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list entries since %s: %w", cutoff.Format(time.RFC3339), err)
	}

	fallback := false
	if len(entries) == 0 {
		entries, err = s.EntryRepo.ListRecent(ctx, s.cfg.FallbackEntries)
		if err != nil {
			return nil, fmt.Errorf("list recent entries: %w", err)
		}
		fallback = len(entries) > 0
	}

	feeds, err := s.FeedRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}

	page := homePage{
		Title:       s.cfg.Title,
		GeneratedAt: now.In(s.cfg.Location),
		WindowDays:  s.cfg.ContentDays,
		Fallback:    fallback,
		Days:        groupByDay(entries, s.cfg.Location),
		Feeds:       sidebarFeeds(feeds, now),
	}

	var buf bytes.Buffer
	if err := homeTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("execute home template: %w", err)
	}

	metrics.RecordRender("html", time.Since(start))
	return buf.Bytes(), nil
}

// groupByDay splits a newest-first entry list into per-date groups in the
// display timezone. Input order is preserved, so groups come out newest
// first and entries stay newest first within each group.
func groupByDay(entries []repository.EntryWithFeed, loc *time.Location) []homeDay {
	var days []homeDay
	for _, e := range entries {
		local := e.Entry.PublishedAt.In(loc)
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

		if len(days) == 0 || !days[len(days)-1].Date.Equal(date) {
			days = append(days, homeDay{Date: date})
		}
		g := &days[len(days)-1]
		g.Entries = append(g.Entries, homeEntry{
			Title:       e.Entry.Title,
			URL:         e.Entry.URL,
			Author:      e.Entry.Author,
			FeedTitle:   e.FeedTitle,
			FeedSiteURL: e.FeedSiteURL,
			Content:     template.HTML(e.Entry.Content),
			PublishedAt: local,
		})
	}
	return days
}

func sidebarFeeds(feeds []*entity.Feed, now time.Time) []homeFeed {
	out := make([]homeFeed, 0, len(feeds))
	for _, f := range feeds {
		label, class := freshnessBucket(f.LastEntryAt, now)
		out = append(out, homeFeed{
			Title:          feedDisplayTitle(f.Title, f.URL),
			URL:            f.URL,
			SiteURL:        f.SiteURL,
			Freshness:      label,
			FreshnessClass: class,
		})
	}
	return out
}

// freshnessBucket classifies a feed by the age of its newest entry.
func freshnessBucket(lastEntryAt *time.Time, now time.Time) (label, class string) {
	if lastEntryAt == nil {
		return freshnessNever, "never"
	}
	switch age := now.Sub(*lastEntryAt); {
	case age <= 24*time.Hour:
		return freshnessToday, "today"
	case age <= 7*24*time.Hour:
		return freshnessThisWeek, "week"
	case age <= 30*24*time.Hour:
		return freshnessThisMonth, "month"
	default:
		return freshnessDormant, "dormant"
	}
}

var homeTemplate = template.Must(template.New("home").Parse(homeTemplateText))

const homeTemplateText = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="alternate" type="application/atom+xml" title="{{.Title}} (Atom)" href="/feed.atom">
<link rel="alternate" type="application/rss+xml" title="{{.Title}} (RSS)" href="/feed.rss">
<style>
body { margin: 0 auto; max-width: 72rem; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.5; color: #1f2328; }
a { color: #0b57d0; text-decoration: none; }
a:hover { text-decoration: underline; }
header { border-bottom: 2px solid #1f2328; padding: 1rem 0; }
header h1 { margin: 0; }
.layout { display: flex; gap: 2rem; align-items: flex-start; }
main { flex: 3; min-width: 0; }
aside { flex: 1; position: sticky; top: 1rem; }
.notice { background: #fff8e5; border: 1px solid #e0c468; border-radius: 4px; padding: 0.5rem 0.75rem; }
section.day > h2 { border-bottom: 1px solid #d0d7de; padding-bottom: 0.25rem; }
article.entry { margin: 1.5rem 0; }
article.entry h3 { margin: 0 0 0.25rem; }
.meta { color: #57606a; font-size: 0.875rem; margin: 0 0 0.5rem; }
.content { overflow-wrap: anywhere; }
.content img { max-width: 100%; height: auto; }
aside ul { list-style: none; margin: 0; padding: 0; }
aside li { margin: 0.375rem 0; }
.freshness { font-size: 0.75rem; color: #57606a; }
li.dormant .freshness, li.never .freshness { color: #b35900; }
footer { border-top: 1px solid #d0d7de; margin-top: 2rem; padding: 1rem 0; color: #57606a; font-size: 0.875rem; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
</header>
<div class="layout">
<main>
{{- if .Fallback}}
<p class="notice">Nothing was published in the last {{.WindowDays}} days; showing the most recent entries instead.</p>
{{- end}}
{{- range .Days}}
<section class="day">
<h2>{{.Date.Format "Monday, January 2, 2006"}}</h2>
{{- range .Entries}}
<article class="entry">
<h3><a href="{{.URL}}" rel="noopener">{{.Title}}</a></h3>
<p class="meta">{{if .FeedSiteURL}}<a href="{{.FeedSiteURL}}" rel="noopener">{{.FeedTitle}}</a>{{else}}{{.FeedTitle}}{{end}}{{with .Author}} &middot; {{.}}{{end}} &middot; {{.PublishedAt.Format "15:04"}}</p>
<div class="content">{{.Content}}</div>
</article>
{{- end}}
</section>
{{- else}}
<p class="empty">No entries yet. Subscribe some feeds and check back after the next fetch.</p>
{{- end}}
</main>
<aside>
<h2>Feeds</h2>
<ul>
{{- range .Feeds}}
<li class="{{.FreshnessClass}}">{{if .SiteURL}}<a href="{{.SiteURL}}" rel="noopener">{{.Title}}</a>{{else}}{{.Title}}{{end}} <a href="{{.URL}}" rel="noopener">(feed)</a> <span class="freshness">{{.Freshness}}</span></li>
{{- end}}
</ul>
<p><a href="/feeds.opml">OPML</a> &middot; <a href="/feed.atom">Atom</a> &middot; <a href="/feed.rss">RSS</a></p>
</aside>
</div>
<footer>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}.</p>
</footer>
</body>
</html>
`
