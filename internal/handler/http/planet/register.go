// Package planet serves the public aggregator surface: the home page,
// the Atom and RSS syndication feeds, the OPML subscription export, and
// the semantic search endpoint. All documents are rendered from the
// store on each request; caching is left to the Cache-Control headers
// and whatever sits in front of the server.
package planet

import (
	"context"
	"errors"
	"net/http"
	"time"

	"planet-cf/internal/handler/http/respond"
	"planet-cf/internal/usecase/search"
)

// Renderer produces the public documents. Implementations render from
// current store state; now pins every timestamp in the output so that
// identical store state yields identical bytes.
type Renderer interface {
	RenderHome(ctx context.Context, now time.Time) ([]byte, error)
	RenderAtom(ctx context.Context, now time.Time) ([]byte, error)
	RenderRSS(ctx context.Context, now time.Time) ([]byte, error)
	RenderOPML(ctx context.Context) ([]byte, error)
}

// Searcher answers semantic search queries. A degraded vector path
// returns an empty slice, never an error.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) []search.Result
}

// cacheControl is sent on every public document. Rendered output only
// changes when the fetch pipeline writes new entries, so an hour of
// shared caching is safe and keeps feed readers from hammering us.
const cacheControl = "public, max-age=3600, stale-while-revalidate=60"

// Register registers the public aggregator routes with the given mux.
// The root pattern uses {$} so only the exact path matches; everything
// unknown falls through to a JSON 404 instead of the mux default.
func Register(mux *http.ServeMux, renderer Renderer, searcher Searcher) {
	mux.Handle("GET    /{$}", HomeHandler{renderer})
	mux.Handle("GET    /feed.atom", AtomHandler{renderer})
	mux.Handle("GET    /feed.rss", RSSHandler{renderer})
	mux.Handle("GET    /feeds.opml", OPMLHandler{renderer})
	mux.Handle("GET    /search", SearchHandler{searcher})

	mux.Handle("/", NotFoundHandler{})
}

// NotFoundHandler answers anything no other route claimed.
type NotFoundHandler struct{}

func (NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, http.StatusNotFound, errors.New("not found"))
}

// writeDocument sends a rendered document with the shared cache policy.
func writeDocument(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
