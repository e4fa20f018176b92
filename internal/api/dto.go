package api

import (
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/search"
)

// NoteRequest is the request body for creating or updating a note.
type NoteRequest = noteservice.NoteInput

// NoteDetail is a note with its file checksum.
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SimilarDraftRequest is the body of POST /api/similar. Limit is the draft's
// limit text; the result count comes from the limit query parameter.
type SimilarDraftRequest struct {
	Problem   string `json:"problem"`
	Solution  string `json:"solution"`
	Limit     string `json:"limit"`
	ExcludeID string `json:"excludeId"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string          `json:"query" example:"cache eviction"`
	Results []search.Result `json:"results" validate:"required"`
}

// GraphResponse is the relation graph. Subject is null when unscoped.
type GraphResponse struct {
	Subject *string      `json:"subject"`
	Nodes   []graph.Node `json:"nodes" validate:"required"`
	Edges   []graph.Edge `json:"edges" validate:"required"`
}

// SubjectRequest is the body of POST /api/subjects.
type SubjectRequest struct {
	Name   string               `json:"name" example:"recipe" validate:"required"`
	Schema models.SubjectSchema `json:"schema"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"3f2a9c.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/attachments/3f2a9c.png" validate:"required"`
}
