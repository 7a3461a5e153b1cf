package planet

import (
	"net/http"

	"planet-cf/internal/handler/http/respond"
)

// OPMLHandler serves the subscription list as an OPML 2.0 download.
type OPMLHandler struct{ Renderer Renderer }

func (h OPMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := h.Renderer.RenderOPML(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="planet.opml"`)
	writeDocument(w, "text/x-opml; charset=utf-8", body)
}
