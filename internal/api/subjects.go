package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/models"
)

// ListSubjects handles GET /api/subjects.
//
//	@Summary		List subjects
//	@Tags			subjects
//	@Produce		json
//	@Success		200	{array}	models.Subject
//	@Security		BearerAuth
//	@Router			/subjects [get]
func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.svc.ListSubjects(r.Context())
	if err != nil {
		writeError(w, "list subjects", err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

// SaveSubject handles POST /api/subjects. Base subjects are returned
// unchanged with 200; other subjects are created or updated with 201.
//
//	@Summary		Create or update a subject schema
//	@Tags			subjects
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SubjectRequest	true	"Subject"
//	@Success		200		{object}	models.Subject
//	@Success		201		{object}	models.Subject
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/subjects [post]
func (h *Handler) SaveSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, created, err := h.svc.SaveSubject(r.Context(), models.Subject{Name: req.Name, Schema: req.Schema})
	if err != nil {
		writeError(w, "save subject", err, slog.String("name", req.Name))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

// DeleteSubject handles DELETE /api/subjects/{name}.
//
//	@Summary		Delete an unused user-defined subject
//	@Tags			subjects
//	@Param			name	path	string	true	"Subject name"
//	@Success		204		"Subject deleted"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/subjects/{name} [delete]
func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.DeleteSubject(r.Context(), name); err != nil {
		writeError(w, "delete subject", err, slog.String("name", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
