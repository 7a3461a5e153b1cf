package planet

import (
	"net/http"
	"time"

	"planet-cf/internal/handler/http/respond"
)

// AtomHandler serves the merged Atom 1.0 feed.
type AtomHandler struct{ Renderer Renderer }

func (h AtomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.Renderer.RenderAtom(r.Context(), time.Now())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDocument(w, "application/atom+xml; charset=utf-8", body)
}
