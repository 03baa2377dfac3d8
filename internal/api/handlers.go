package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/board"
	"github.com/starford/horizon/internal/boardservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *boardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *boardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// storyPath extracts the story path from the URL (everything after
// /api/stories/). Supports encoded slashes (e.g. Done%2FPROJ-1.md).
// chi matches against RawPath when the request has one, so the parameter
// is only still escaped in that case.
func storyPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" || r.URL.RawPath == "" {
		return raw
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps session errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrPrecondition):
		writeJSON(w, http.StatusPreconditionFailed, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// GetBoard handles GET /api/board.
//
//	@Summary		Get the assembled board
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	BoardView
//	@Security		BearerAuth
//	@Router			/board [get]
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeError(w, "board", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Refresh handles POST /api/refresh. It rebuilds the board and tells
// connected clients to re-render.
//
//	@Summary		Rebuild the board from disk
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	BoardView
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeError(w, "refresh", err)
		return
	}
	h.svc.NotifyBoardUpdated()
	writeJSON(w, http.StatusOK, view)
}

// GetStory handles GET /api/stories/*.
//
//	@Summary		Open a story by path relative to the story directory
//	@Tags			stories
//	@Produce		json
//	@Param			path	path		string	true	"Story path"
//	@Success		200		{object}	StoryDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stories/{path} [get]
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	path := storyPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	story, err := h.svc.OpenStory(r.Context(), path)
	if err != nil {
		writeError(w, "open story", err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// MoveStory handles POST /api/stories/move. Move failures are reported in
// the result body with status 200; only malformed requests get a 4xx.
//
//	@Summary		Move a story between columns
//	@Tags			stories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveStoryRequest	true	"Move request"
//	@Success		200		{object}	MoveEvent
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stories/move [post]
func (h *Handler) MoveStory(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MoveStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.MoveStory(r.Context(), req.toMover()))
}

// SearchStories handles GET /api/stories?q=.
//
//	@Summary		Search stories by id, title, tag or text
//	@Tags			stories
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/stories [get]
func (h *Handler) SearchStories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Unassigned handles GET /api/unassigned.
//
//	@Summary		List stories no column holds
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	UnassignedResponse
//	@Failure		412	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/unassigned [get]
func (h *Handler) Unassigned(w http.ResponseWriter, r *http.Request) {
	stories, err := h.svc.Unassigned(r.Context())
	if err != nil {
		writeError(w, "unassigned", err)
		return
	}
	writeJSON(w, http.StatusOK, UnassignedResponse{Stories: stories})
}

// Orphans handles GET /api/orphans.
//
//	@Summary		List index records of unconfigured columns
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	OrphansResponse
//	@Failure		412	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/orphans [get]
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.Orphans(r.Context())
	if err != nil {
		writeError(w, "orphans", err)
		return
	}
	writeJSON(w, http.StatusOK, OrphansResponse{Records: records})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Open the board settings file
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsDetail
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.OpenSettings(r.Context())
	if err != nil {
		writeError(w, "open settings", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Page renders the board as a full HTML document.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeError(w, "render", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := board.Render(w, view); err != nil {
		slog.Error("render failed", slog.String("error", err.Error()))
	}
}
