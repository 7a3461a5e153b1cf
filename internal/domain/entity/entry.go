package entity

import "time"

// Entry represents one syndicated item inside a feed.
// The natural key (FeedID, GUID) is unique; GUID is chosen from the
// source's stable identifier, falling back to the canonical link, then
// the title.
type Entry struct {
	ID     int64
	FeedID int64
	GUID   string

	URL     string
	Title   string
	Author  string
	Content string // sanitized HTML
	Summary string // plain-text excerpt, bounded length

	PublishedAt time.Time
	UpdatedAt   *time.Time

	// FirstSeen is the wall-clock time the system first observed the
	// entry. It is set in the INSERT branch of the upsert and never
	// overwritten, which defeats feeds that back-date items.
	FirstSeen time.Time
	CreatedAt time.Time
}

// Validate validates the Entry entity fields.
func (e *Entry) Validate() error {
	if e.FeedID == 0 {
		return &ValidationError{Field: "feed_id", Message: "feed ID is required"}
	}
	if e.GUID == "" {
		return &ValidationError{Field: "guid", Message: "GUID is required"}
	}
	return nil
}
