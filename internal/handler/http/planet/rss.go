package planet

import (
	"net/http"
	"time"

	"planet-cf/internal/handler/http/respond"
)

// RSSHandler serves the merged RSS 2.0 feed.
type RSSHandler struct{ Renderer Renderer }

func (h RSSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.Renderer.RenderRSS(r.Context(), time.Now())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDocument(w, "application/rss+xml; charset=utf-8", body)
}
