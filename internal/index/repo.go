package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// Sort keys accepted by ListNotes.
const (
	SortUpdated = "updated_at"
	SortCreated = "created_at"
	SortTitle   = "title"
)

const noteColumns = `id, path, title, subject, problem, solution, limit_text, details,
	tags, status, priority, due_date, props, created_at, updated_at`

// ListQuery filters and paginates ListNotes.
type ListQuery struct {
	Limit   int
	Offset  int
	Tag     string
	Subject string
	Sort    string
}

// UpsertNote inserts or replaces a note. A different note previously stored
// at the same path is dropped first.
func (db *DB) UpsertNote(n models.Note, checksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	props := n.Props
	if props == nil {
		props = map[string]string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	propsJSON, _ := json.Marshal(props)

	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ? AND id <> ?`, n.Path, n.ID); err != nil {
		return fmt.Errorf("index: clear path: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO notes (`+noteColumns+`, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			title      = excluded.title,
			subject    = excluded.subject,
			problem    = excluded.problem,
			solution   = excluded.solution,
			limit_text = excluded.limit_text,
			details    = excluded.details,
			tags       = excluded.tags,
			status     = excluded.status,
			priority   = excluded.priority,
			due_date   = excluded.due_date,
			props      = excluded.props,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			checksum   = excluded.checksum
	`, n.ID, n.Path, n.Title, n.Subject, n.Problem, n.Solution, n.Limit, n.Details,
		string(tagsJSON), n.Status, n.Priority, n.DueDate, string(propsJSON),
		n.CreatedAt.UTC(), n.UpdatedAt.UTC(), checksum)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	return tx.Commit()
}

// DeleteNote removes a note by id. Deleting a missing note is not an error.
func (db *DB) DeleteNote(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// DeleteByPath removes the note stored at path and returns its id, or an
// empty id when nothing was indexed there.
func (db *DB) DeleteByPath(path string) (string, error) {
	var id string
	err := db.conn.QueryRow(`DELETE FROM notes WHERE path = ? RETURNING id`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: delete by path: %w", err)
	}
	return id, nil
}

// GetNote returns the note with the given id or apperr.ErrNotFound.
func (db *DB) GetNote(id string) (*models.Note, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// AllNotes returns every indexed note, most recently updated first.
func (db *DB) AllNotes() ([]models.Note, error) {
	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("index: all notes: %w", err)
	}
	return collectNotes(rows)
}

// ListNotes returns a page of notes and the total number of matches.
func (db *DB) ListNotes(q ListQuery) ([]models.Note, int, error) {
	var (
		where []string
		args  []any
	)
	if q.Tag != "" {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)`)
		args = append(args, q.Tag)
	}
	if q.Subject != "" {
		where = append(where, `subject = ? COLLATE NOCASE`)
		args = append(args, q.Subject)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	order := "updated_at DESC, id"
	switch q.Sort {
	case SortTitle:
		order = "title COLLATE NOCASE, id"
	case SortCreated:
		order = "created_at DESC, id"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := max(q.Offset, 0)

	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes`+clause+
		` ORDER BY `+order+` LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	notes, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// GetChecksum returns the stored checksum for a path, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// CountBySubject returns how many notes use the subject (case-insensitive).
func (db *DB) CountBySubject(subject string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM notes WHERE subject = ? COLLATE NOCASE`, subject).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count by subject: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n         models.Note
		tagsJSON  string
		propsJSON string
		priority  sql.NullInt64
	)
	err := s.Scan(&n.ID, &n.Path, &n.Title, &n.Subject, &n.Problem, &n.Solution, &n.Limit, &n.Details,
		&tagsJSON, &n.Status, &priority, &n.DueDate, &propsJSON, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	decodeColumn(tagsJSON, &n.Tags, "tags", slog.String("note_id", n.ID))
	decodeColumn(propsJSON, &n.Props, "props", slog.String("note_id", n.ID))
	if priority.Valid {
		p := int(priority.Int64)
		n.Priority = &p
	}
	n.Normalize()
	return &n, nil
}

// decodeColumn unmarshals a JSON column. A corrupt value leaves dst empty
// and is logged rather than failing the whole read; the next sync of the
// note's file rewrites it.
func decodeColumn(raw string, dst any, column string, attrs ...any) {
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		attrs = append(attrs, slog.String("column", column), slog.String("error", err.Error()))
		slog.Warn("index: corrupt json column", attrs...)
	}
}

func collectNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()
	out := make([]models.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
