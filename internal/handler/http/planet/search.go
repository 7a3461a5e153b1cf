package planet

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"planet-cf/internal/handler/http/respond"
	"planet-cf/internal/observability/metrics"
)

const (
	minQueryLength = 2
	defaultLimit   = 20
	maxLimit       = 50
)

// SearchHandler serves semantic search over the aggregated entries.
type SearchHandler struct{ Searcher Searcher }

// ServeHTTP answers GET /search?q=...&limit=N. The query must be at
// least two runes after trimming; limit defaults to 20 and is clamped
// to [1, 50]. A healthy request always returns 200 with a result
// array, possibly empty: vector-path failures degrade inside the
// service rather than surfacing as errors here.
func (h SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if utf8.RuneCountInString(q) < minQueryLength {
		metrics.RecordSearch("invalid", 0)
		respond.SafeError(w, http.StatusBadRequest,
			errors.New("q query param required: at least 2 characters"))
		return
	}

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			metrics.RecordSearch("invalid", 0)
			respond.SafeError(w, http.StatusBadRequest,
				errors.New("invalid limit: must be a valid integer"))
			return
		}
		limit = clampLimit(n)
	}

	results := h.Searcher.Search(r.Context(), q, limit)

	out := make([]ResultDTO, 0, len(results))
	for _, res := range results {
		out = append(out, ResultDTO{
			ID:          res.ID,
			Title:       res.Title,
			URL:         res.URL,
			Author:      res.Author,
			FeedTitle:   res.FeedTitle,
			PublishedAt: res.PublishedAt,
			Score:       res.Score,
		})
	}

	w.Header().Set("Cache-Control", cacheControl)
	respond.JSON(w, http.StatusOK, SearchResponse{Results: out})
}

// clampLimit keeps user-supplied result counts inside the served range.
// Out-of-range values are clamped rather than rejected so that readers
// with hardcoded limits keep working.
func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
