// Package noteservice coordinates the vault, the index and the analysis
// engines. It is the single entry point used by the HTTP API, the MCP server
// and the CLI.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/search"
	"github.com/starford/notegraph/internal/similarity"
	"github.com/starford/notegraph/internal/storage"
)

// NoteDetail is a note plus the checksum of its file, used as the If-Match
// value for updates.
type NoteDetail struct {
	models.Note
	Checksum string `json:"checksum"`
}

// NoteInput is the editable part of a note.
type NoteInput struct {
	Title    string            `json:"title"`
	Subject  string            `json:"subject"`
	Problem  string            `json:"problem"`
	Solution string            `json:"solution"`
	Limit    string            `json:"limit"`
	Details  string            `json:"details"`
	Tags     []string          `json:"tags"`
	Status   string            `json:"status"`
	Priority *int              `json:"priority"`
	DueDate  string            `json:"due_date"`
	Props    map[string]string `json:"props"`
}

// Validate implements validation.Validatable.
func (in NoteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Problem, validation.Required.Error("problem is required")),
		validation.Field(&in.Solution, validation.Required.Error("solution is required")),
		validation.Field(&in.Subject, validation.Length(0, 64)),
		validation.Field(&in.DueDate, validation.Date(time.DateOnly)),
	)
}

// ListQuery filters and pages ListNotes.
type ListQuery = index.ListQuery

// EventFunc receives note change notifications ("created", "updated",
// "deleted") for writes made through the service.
type EventFunc func(kind, id string)

// Service coordinates storage and index operations.
type Service struct {
	store        storage.Provider
	db           index.NoteIndex
	now          func() time.Time
	notify       EventFunc
	suggestLimit int
	searchLimit  int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEvents registers a callback for note changes.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) { s.notify = fn }
}

// WithLimits sets the default result counts for suggestions and search.
// Non-positive values keep the engine defaults.
func WithLimits(suggest, search int) Option {
	return func(s *Service) {
		s.suggestLimit = suggest
		s.searchLimit = search
	}
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, opts ...Option) *Service {
	s := &Service{
		store:        store,
		db:           db,
		now:          time.Now,
		suggestLimit: similarity.DefaultLimit,
		searchLimit:  search.DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(kind, id string) {
	if s.notify != nil {
		s.notify(kind, id)
	}
}

// ListNotes returns a page of notes and the total number of matches.
func (s *Service) ListNotes(_ context.Context, q ListQuery) ([]models.Note, int, error) {
	return s.db.ListNotes(q)
}

// GetNote returns the note with the given id and its file checksum.
func (s *Service) GetNote(_ context.Context, id string) (*NoteDetail, error) {
	n, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	cs, err := s.db.GetChecksum(n.Path)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{Note: *n, Checksum: cs}, nil
}

// CreateNote validates in, writes a new note file under a fresh id and
// indexes it.
func (s *Service) CreateNote(_ context.Context, in NoteInput) (*NoteDetail, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalid, err.Error())
	}
	now := s.now().UTC()
	n := in.toNote(uuid.NewString())
	n.CreatedAt = now
	n.UpdatedAt = now

	detail, err := s.write(n)
	if err != nil {
		return nil, err
	}
	s.emit(index.EventCreated, detail.ID)
	return detail, nil
}

// UpdateNote replaces the editable fields of a note. A non-empty ifMatch
// must equal the checksum of the file on disk, else apperr.ErrConflict.
func (s *Service) UpdateNote(_ context.Context, id string, in NoteInput, ifMatch string) (*NoteDetail, error) {
	existing, err := s.db.GetNote(id)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalid, err.Error())
	}
	data, err := s.store.Read(existing.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if !checksum.Matches(ifMatch, data) {
		return nil, apperr.ErrConflict
	}

	n := in.toNote(id)
	n.Path = existing.Path
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = s.now().UTC()

	detail, err := s.write(n)
	if err != nil {
		return nil, err
	}
	s.emit(index.EventUpdated, id)
	return detail, nil
}

// DeleteNote removes a note file and its index entry.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	n, err := s.db.GetNote(id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(n.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := s.db.DeleteNote(id); err != nil {
		return err
	}
	s.emit(index.EventDeleted, id)
	return nil
}

func (s *Service) write(n models.Note) (*NoteDetail, error) {
	if n.Path == "" {
		n.Path = storage.NotePath(n.ID)
	}
	data, err := parser.Render(n)
	if err != nil {
		return nil, err
	}

	// The index entry lands before the file does, so the watcher finds a
	// matching checksum and does not report the service's own write.
	prev, prevSum, err := s.snapshot(n.ID, n.Path)
	if err != nil {
		return nil, err
	}
	indexed, err := index.IndexFile(s.db, n.Path, data, n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(n.Path, data); err != nil {
		s.restore(n.ID, prev, prevSum)
		return nil, err
	}
	return &NoteDetail{Note: indexed, Checksum: checksum.Sum(data)}, nil
}

// snapshot returns the indexed note and checksum a write may have to roll
// back to. prev is nil for a new note.
func (s *Service) snapshot(id, path string) (*models.Note, string, error) {
	prev, err := s.db.GetNote(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	sum, err := s.db.GetChecksum(path)
	if err != nil {
		return nil, "", err
	}
	return prev, sum, nil
}

func (s *Service) restore(id string, prev *models.Note, prevSum string) {
	var err error
	if prev == nil {
		err = s.db.DeleteNote(id)
	} else {
		err = s.db.UpsertNote(*prev, prevSum)
	}
	if err != nil {
		slog.Error("noteservice: index rollback failed",
			slog.String("note_id", id), slog.String("error", err.Error()))
	}
}

func (in NoteInput) toNote(id string) models.Note {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = parser.ExtractTitle(in.Problem)
	}
	n := models.Note{
		ID:       id,
		Title:    title,
		Subject:  strings.TrimSpace(in.Subject),
		Problem:  in.Problem,
		Solution: in.Solution,
		Limit:    in.Limit,
		Details:  in.Details,
		Tags:     parser.CleanTags(in.Tags),
		Status:   strings.TrimSpace(in.Status),
		Priority: in.Priority,
		DueDate:  strings.TrimSpace(in.DueDate),
		Props:    in.Props,
	}
	n.Normalize()
	return n
}

// Similar returns the relation bundle of a stored note. A non-positive limit
// uses the configured default.
func (s *Service) Similar(_ context.Context, id string, limit int) (*similarity.Bundle, error) {
	corpus, err := s.db.AllNotes()
	if err != nil {
		return nil, err
	}
	return similarity.ForNote(corpus, id, s.orSuggest(limit))
}

// SimilarDraft returns the relation bundle of an unsaved draft, leaving out
// excludeID.
func (s *Service) SimilarDraft(_ context.Context, draft similarity.Draft, limit int, excludeID string) (*similarity.Bundle, error) {
	corpus, err := s.db.AllNotes()
	if err != nil {
		return nil, err
	}
	return similarity.ForDraft(corpus, draft, s.orSuggest(limit), excludeID), nil
}

// Search ranks notes by weighted phrase occurrences. A blank query returns
// no results without loading the corpus.
func (s *Service) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	if search.Normalize(query) == "" {
		return []search.Result{}, nil
	}
	corpus, err := s.db.AllNotes()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.searchLimit
	}
	return search.Search(corpus, query, limit), nil
}

// Graph builds the relation graph, optionally restricted to one subject.
func (s *Service) Graph(_ context.Context, subject string) (graph.Graph, error) {
	corpus, err := s.db.AllNotes()
	if err != nil {
		return graph.Graph{}, err
	}
	return graph.Build(corpus, subject), nil
}

func (s *Service) orSuggest(limit int) int {
	if limit > 0 {
		return limit
	}
	return s.suggestLimit
}
