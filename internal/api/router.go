package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/horizon/internal/boardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *boardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Board.
	r.Get("/board", h.GetBoard)
	r.Post("/refresh", h.Refresh)

	// Stories.
	r.Get("/stories", h.SearchStories)
	r.Post("/stories/move", h.MoveStory)
	r.Get("/stories/*", h.GetStory)

	// Index maintenance.
	r.Get("/unassigned", h.Unassigned)
	r.Get("/orphans", h.Orphans)

	r.Get("/settings", h.GetSettings)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// PageHandler serves the HTML board behind the same auth rules.
func PageHandler(svc *boardservice.Service, authEnabled bool, token string) http.Handler {
	return AuthMiddleware(authEnabled, token)(http.HandlerFunc(NewHandler(svc).Page))
}
