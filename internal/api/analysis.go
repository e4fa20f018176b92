package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/similarity"
)

// SimilarNotes handles GET /api/notes/{id}/similar.
//
//	@Summary		Related notes of a stored note
//	@Tags			similarity
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Param			limit	query		int		false	"Max results per relation"
//	@Success		200		{object}	similarity.Bundle
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/similar [get]
func (h *Handler) SimilarNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bundle, err := h.svc.Similar(r.Context(), id, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "similar notes", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// SimilarDraft handles POST /api/similar.
//
//	@Summary		Related notes of an unsaved draft
//	@Tags			similarity
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SimilarDraftRequest	true	"Draft fields"
//	@Param			limit	query		int					false	"Max results per relation"
//	@Success		200		{object}	similarity.Bundle
//	@Security		BearerAuth
//	@Router			/similar [post]
func (h *Handler) SimilarDraft(w http.ResponseWriter, r *http.Request) {
	var req SimilarDraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	draft := similarity.Draft{Problem: req.Problem, Solution: req.Solution, Limit: req.Limit}
	bundle, err := h.svc.SimilarDraft(r.Context(), draft, queryInt(r, "limit"), req.ExcludeID)
	if err != nil {
		writeError(w, "similar draft", err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// Search handles GET /api/search. A blank query yields no results.
//
//	@Summary		Phrase search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search phrase"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	results, err := h.svc.Search(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Relation graph, optionally scoped to a subject
//	@Tags			graph
//	@Produce		json
//	@Param			subject	query		string	false	"Subject name"
//	@Success		200		{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Graph(r.Context(), r.URL.Query().Get("subject"))
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	resp := GraphResponse{Nodes: g.Nodes, Edges: g.Edges}
	if g.Subject != "" {
		resp.Subject = &g.Subject
	}
	writeJSON(w, http.StatusOK, resp)
}
