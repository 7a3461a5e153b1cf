package planet

import "time"

// ResultDTO represents one search hit in JSON responses.
type ResultDTO struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	FeedTitle   string    `json:"feed_title,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Score       float64   `json:"score"`
}

// SearchResponse wraps search hits so the array can grow siblings
// (paging cursors, timing) without breaking clients.
type SearchResponse struct {
	Results []ResultDTO `json:"results"`
}
