package planet

import (
	"net/http"
	"time"

	"planet-cf/internal/handler/http/respond"
)

// HomeHandler serves the aggregated home page.
type HomeHandler struct{ Renderer Renderer }

func (h HomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.Renderer.RenderHome(r.Context(), time.Now())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	writeDocument(w, "text/html; charset=utf-8", body)
}
