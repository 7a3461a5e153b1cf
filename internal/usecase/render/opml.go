package render

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"planet-cf/internal/observability/metrics"
)

// OPML 2.0 document model.

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title      string `xml:"title"`
	OwnerEmail string `xml:"ownerEmail,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Type    string `xml:"type,attr"`
	Text    string `xml:"text,attr"`
	Title   string `xml:"title,attr"`
	XMLURL  string `xml:"xmlUrl,attr"`
	HTMLURL string `xml:"htmlUrl,attr,omitempty"`
}

// RenderOPML renders the active feed roster as an OPML 2.0 subscription
// list, one type="rss" outline per feed. Inactive feeds are omitted. The
// output carries no timestamps, so it only changes when the roster does.
func (s *Service) RenderOPML(ctx context.Context) ([]byte, error) {
	start := time.Now()

	feeds, err := s.FeedRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active feeds: %w", err)
	}

	doc := opmlDoc{
		Version: "2.0",
		Head:    opmlHead{Title: s.cfg.Title, OwnerEmail: s.cfg.AdminEmail},
		Body:    opmlBody{Outlines: make([]opmlOutline, 0, len(feeds))},
	}
	for _, f := range feeds {
		title := feedDisplayTitle(f.Title, f.URL)
		doc.Body.Outlines = append(doc.Body.Outlines, opmlOutline{
			Type:    "rss",
			Text:    title,
			Title:   title,
			XMLURL:  f.URL,
			HTMLURL: f.SiteURL,
		})
	}

	out, err := marshalXML(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal opml: %w", err)
	}
	metrics.RecordRender("opml", time.Since(start))
	return out, nil
}
