package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quill/internal/agent"
	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

// Runner runs one planning loop per prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) agent.Outcome
}

// Handler holds API route handlers.
type Handler struct {
	runner Runner
	store  storage.Provider
	logger *slog.Logger
}

// NewHandler creates a Handler. logger may be nil.
func NewHandler(runner Runner, store storage.Provider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, store: store, logger: logger}
}

// Validate rejects prompts that are empty once surrounding whitespace is
// removed. The prompt itself is passed on untrimmed.
func (r AgentRequest) Validate() error {
	return validation.Validate(strings.TrimSpace(r.Prompt),
		validation.Required.Error("Prompt cannot be empty"),
	)
}

// DownloadURL returns the download path for a note.
func DownloadURL(name string) string {
	return "/download/" + url.PathEscape(name)
}

// RunAgent handles POST /agent.
//
//	@Summary		Run the note agent on a prompt
//	@Tags			agent
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AgentRequest	true	"Prompt"
//	@Success		200		{object}	AgentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		500		{object}	errResponse
//	@Router			/agent [post]
func (h *Handler) RunAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	out, err := h.run(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("agent invocation failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("Error invoking agent: "+err.Error()))
		return
	}

	resp := AgentResponse{Response: out.Reply}
	if out.HasFile() {
		name := out.Filename
		link := DownloadURL(name)
		resp.Filename = &name
		resp.DownloadURL = &link
	}
	writeJSON(w, http.StatusOK, resp)
}

// run shields the request from panics inside the loop or a planner.
func (h *Handler) run(ctx context.Context, prompt string) (out agent.Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return h.runner.Run(ctx, prompt), nil
}

// Download handles GET /download/{filename}.
//
//	@Summary		Download a note as plain text
//	@Tags			notes
//	@Produce		plain
//	@Param			filename	path		string	true	"Note name"
//	@Success		200			{string}	string
//	@Failure		404			{object}	errResponse
//	@Router			/download/{filename} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "filename")
	// chi matches against RawPath when the request has one, leaving the
	// parameter escaped; otherwise it is already decoded.
	if r.URL.RawPath != "" {
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
	}

	rc, info, err := h.store.Open(raw)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("Note not found"))
			return
		}
		h.logger.Error("open note failed", slog.String("filename", raw), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	defer rc.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	hdr.Set("ETag", `"`+info.Checksum+`"`)
	http.ServeContent(w, r, info.Name, info.UpdatedAt, rc)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Router			/api/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.store.List()
	if err != nil {
		h.logger.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if notes == nil {
		notes = []models.NoteInfo{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}
