package api

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
)

//go:embed static/*
var staticFS embed.FS

// NewRouter creates a chi router with the page, the agent endpoint, the
// download endpoint and the notes listing. events, if non-nil, is mounted at
// GET /events.
func NewRouter(h *Handler, events http.Handler) chi.Router {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	r.Post("/agent", h.RunAgent)
	r.Get("/download/{filename}", h.Download)
	r.Get("/api/notes", h.ListNotes)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	return r
}
