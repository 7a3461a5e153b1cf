// Package parser normalizes raw RSS/Atom/JSON-feed documents into a
// format-neutral shape. It uses the gofeed library for format detection and
// parsing and deliberately does nothing else: no fetching, no sanitizing.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// ParsedFeed is the channel-level result of parsing one feed document.
// Optional fields are empty strings when the source omits them.
type ParsedFeed struct {
	Title       string
	Link        string
	AuthorName  string
	AuthorEmail string
	// Entries preserves document order.
	Entries []ParsedEntry
}

// ParsedEntry is one item of a parsed feed, untouched by any content
// policy. ContentHTML prefers the full-content element (content:encoded,
// Atom content) and falls back to the item description; Summary always
// carries the description as-is. Published and Updated are nil when the
// source supplied no parseable timestamp.
type ParsedEntry struct {
	GUID        string
	Link        string
	Title       string
	Author      string
	ContentHTML string
	Summary     string
	Published   *time.Time
	Updated     *time.Time
}

// Parser wraps a shared gofeed universal parser. Safe for concurrent use.
type Parser struct {
	fp *gofeed.Parser
}

// New creates a Parser.
func New() *Parser {
	return &Parser{fp: gofeed.NewParser()}
}

// Parse normalizes one feed document.
//
// The parser is tolerant by policy: a document that yields at least one
// entry is a success even if malformed in parts. Only a document that
// yields zero entries together with a parser error is a hard failure. A
// well-formed feed with an empty item list parses to zero entries and nil
// error.
func (p *Parser) Parse(data []byte) (*ParsedFeed, error) {
	feed, err := p.fp.Parse(bytes.NewReader(data))
	if err != nil && (feed == nil || len(feed.Items) == 0) {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	if feed == nil {
		return &ParsedFeed{Entries: []ParsedEntry{}}, nil
	}

	out := &ParsedFeed{
		Title:   strings.TrimSpace(feed.Title),
		Link:    strings.TrimSpace(feed.Link),
		Entries: make([]ParsedEntry, 0, len(feed.Items)),
	}
	out.AuthorName, out.AuthorEmail = feedAuthor(feed)

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		out.Entries = append(out.Entries, ParsedEntry{
			GUID:        strings.TrimSpace(item.GUID),
			Link:        strings.TrimSpace(item.Link),
			Title:       strings.TrimSpace(item.Title),
			Author:      itemAuthor(item),
			ContentHTML: itemContent(item),
			Summary:     item.Description,
			Published:   item.PublishedParsed,
			Updated:     item.UpdatedParsed,
		})
	}
	return out, nil
}

// itemContent prefers the dedicated content element over the description.
// RSS feeds that publish full text do so in content:encoded while keeping
// a teaser in description; Atom items land in Content directly.
func itemContent(item *gofeed.Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return item.Description
}

func itemAuthor(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}

func feedAuthor(feed *gofeed.Feed) (name, email string) {
	for _, a := range feed.Authors {
		if a != nil && (a.Name != "" || a.Email != "") {
			return a.Name, a.Email
		}
	}
	if feed.Author != nil {
		return feed.Author.Name, feed.Author.Email
	}
	return "", ""
}
