package render

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"planet-cf/internal/observability/metrics"
	"planet-cf/internal/repository"
)

const (
	atomNS    = "http://www.w3.org/2005/Atom"
	contentNS = "http://purl.org/rss/1.0/modules/content/"
)

// Atom 1.0 document model.

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	NS      string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Author  *atomPerson `xml:"author,omitempty"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomPerson struct {
	Name  string `xml:"name"`
	Email string `xml:"email,omitempty"`
}

type atomEntry struct {
	Title     string      `xml:"title"`
	ID        string      `xml:"id"`
	Updated   string      `xml:"updated"`
	Published string      `xml:"published,omitempty"`
	Link      atomLink    `xml:"link"`
	Author    *atomPerson `xml:"author,omitempty"`
	Summary   string      `xml:"summary,omitempty"`
	Content   *atomText   `xml:"content,omitempty"`
}

type atomText struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// RenderAtom renders an Atom 1.0 document over the most recent entries
// across all feeds. The output is deterministic for a given store state and
// now value: the feed-level updated timestamp comes from the newest entry
// and falls back to now only when the store is empty.
func (s *Service) RenderAtom(ctx context.Context, now time.Time) ([]byte, error) {
	start := time.Now()

	entries, err := s.EntryRepo.ListRecent(ctx, s.cfg.FallbackEntries)
	if err != nil {
		return nil, fmt.Errorf("list recent entries: %w", err)
	}

	feed := atomFeed{
		NS:      atomNS,
		Title:   s.cfg.Title,
		ID:      s.cfg.PublicURL + "/",
		Updated: feedUpdatedAt(entries, now).UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: s.cfg.PublicURL + "/feed.atom", Rel: "self", Type: "application/atom+xml"},
			{Href: s.cfg.PublicURL + "/", Rel: "alternate", Type: "text/html"},
		},
		Entries: make([]atomEntry, 0, len(entries)),
	}
	if s.cfg.AdminEmail != "" {
		feed.Author = &atomPerson{Name: s.cfg.Title, Email: s.cfg.AdminEmail}
	}

	for _, e := range entries {
		ae := atomEntry{
			Title:     e.Entry.Title,
			ID:        s.entryID(e),
			Updated:   entryTimestamp(e).UTC().Format(time.RFC3339),
			Published: e.Entry.PublishedAt.UTC().Format(time.RFC3339),
			Link:      atomLink{Href: e.Entry.URL, Rel: "alternate", Type: "text/html"},
			Author:    &atomPerson{Name: entryAuthor(e)},
			Summary:   e.Entry.Summary,
		}
		if e.Entry.Content != "" {
			// Sanitized HTML; "html" type means the reader unescapes it.
			ae.Content = &atomText{Type: "html", Value: e.Entry.Content}
		}
		feed.Entries = append(feed.Entries, ae)
	}

	out, err := marshalXML(feed)
	if err != nil {
		return nil, fmt.Errorf("marshal atom feed: %w", err)
	}
	metrics.RecordRender("atom", time.Since(start))
	return out, nil
}

// RSS 2.0 document model, with the content and atom extension namespaces
// for full-content items and the self link.

type rssFeed struct {
	XMLName   xml.Name   `xml:"rss"`
	Version   string     `xml:"version,attr"`
	NSContent string     `xml:"xmlns:content,attr"`
	NSAtom    string     `xml:"xmlns:atom,attr"`
	Channel   rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	WebMaster   string    `xml:"webMaster,omitempty"`
	LastBuild   string    `xml:"lastBuildDate"`
	TTL         int       `xml:"ttl"`
	AtomLink    atomLink  `xml:"atom:link"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title          string     `xml:"title"`
	Link           string     `xml:"link"`
	Description    string     `xml:"description"`
	ContentEncoded *rssCData  `xml:"content:encoded,omitempty"`
	PubDate        string     `xml:"pubDate"`
	GUID           rssGUID    `xml:"guid"`
	Source         *rssSource `xml:"source,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssSource struct {
	URL   string `xml:"url,attr"`
	Value string `xml:",chardata"`
}

type rssCData struct {
	Value string `xml:",cdata"`
}

// RenderRSS renders an RSS 2.0 document over the same entry set as
// RenderAtom, with sanitized HTML carried in content:encoded and the plain
// summary in description. Deterministic for a given store state and now.
func (s *Service) RenderRSS(ctx context.Context, now time.Time) ([]byte, error) {
	start := time.Now()

	entries, err := s.EntryRepo.ListRecent(ctx, s.cfg.FallbackEntries)
	if err != nil {
		return nil, fmt.Errorf("list recent entries: %w", err)
	}

	ch := rssChannel{
		Title:       s.cfg.Title,
		Link:        s.cfg.PublicURL + "/",
		Description: s.cfg.Title + " aggregated entries",
		WebMaster:   s.cfg.AdminEmail,
		LastBuild:   feedUpdatedAt(entries, now).UTC().Format(time.RFC1123Z),
		TTL:         60,
		AtomLink:    atomLink{Href: s.cfg.PublicURL + "/feed.rss", Rel: "self", Type: "application/rss+xml"},
		Items:       make([]rssItem, 0, len(entries)),
	}

	for _, e := range entries {
		item := rssItem{
			Title:       e.Entry.Title,
			Link:        e.Entry.URL,
			Description: e.Entry.Summary,
			PubDate:     e.Entry.PublishedAt.UTC().Format(time.RFC1123Z),
			// Entry GUIDs are stable source identifiers, not
			// necessarily resolvable URLs.
			GUID: rssGUID{IsPermaLink: "false", Value: e.Entry.GUID},
		}
		if e.Entry.Content != "" {
			item.ContentEncoded = &rssCData{Value: e.Entry.Content}
		}
		if e.FeedTitle != "" {
			item.Source = &rssSource{URL: e.FeedSiteURL, Value: e.FeedTitle}
		}
		ch.Items = append(ch.Items, item)
	}

	out, err := marshalXML(rssFeed{
		Version:   "2.0",
		NSContent: contentNS,
		NSAtom:    atomNS,
		Channel:   ch,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rss feed: %w", err)
	}
	metrics.RecordRender("rss", time.Since(start))
	return out, nil
}

// entryID returns a stable identifier for an entry: its canonical link, or
// a synthetic URL under the public base for link-less entries.
func (s *Service) entryID(e repository.EntryWithFeed) string {
	if e.Entry.URL != "" {
		return e.Entry.URL
	}
	return fmt.Sprintf("%s/entries/%d", s.cfg.PublicURL, e.Entry.ID)
}

// feedUpdatedAt is the feed-level freshness timestamp: the newest entry's
// change time, or now for an empty store.
func feedUpdatedAt(entries []repository.EntryWithFeed, now time.Time) time.Time {
	if len(entries) == 0 {
		return now
	}
	return entryTimestamp(entries[0])
}

func marshalXML(doc any) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}
