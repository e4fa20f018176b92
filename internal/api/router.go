package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/noteservice"
)

// NewRouter creates a chi router with all API routes, to be mounted at /api.
// authEnabled controls whether Bearer token auth is enforced. sseHandler, if
// non-nil, is mounted at GET /events behind the same auth.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, vaultRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(vaultRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
		r.Get("/{id}/similar", h.SimilarNotes)
	})

	r.Post("/similar", h.SimilarDraft)
	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)

	r.Get("/subjects", h.ListSubjects)
	r.Post("/subjects", h.SaveSubject)
	r.Delete("/subjects/{name}", h.DeleteSubject)

	r.Post("/attachments", ah.Upload)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
