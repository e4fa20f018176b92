package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// seedSubjects inserts the base subjects that are missing and backfills an
// empty schema with the default one.
func (db *DB) seedSubjects() error {
	now := time.Now().UTC()
	for _, s := range models.BaseSubjects() {
		schema, _ := json.Marshal(s.Schema)
		if _, err := db.conn.Exec(`INSERT OR IGNORE INTO subjects (name, created_at, schema) VALUES (?, ?, ?)`,
			s.Name, now, string(schema)); err != nil {
			return fmt.Errorf("index: seed subject %s: %w", s.Name, err)
		}
		if _, err := db.conn.Exec(`UPDATE subjects SET schema = ? WHERE name = ? AND schema IN ('', '{}')`,
			string(schema), s.Name); err != nil {
			return fmt.Errorf("index: backfill subject %s: %w", s.Name, err)
		}
	}
	return nil
}

// ListSubjects returns all subjects ordered by name (case-insensitive).
func (db *DB) ListSubjects() ([]models.Subject, error) {
	rows, err := db.conn.Query(`SELECT name, created_at, schema FROM subjects ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("index: list subjects: %w", err)
	}
	defer rows.Close()
	out := make([]models.Subject, 0)
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan subject: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetSubject returns the named subject or apperr.ErrNotFound.
func (db *DB) GetSubject(name string) (*models.Subject, error) {
	row := db.conn.QueryRow(`SELECT name, created_at, schema FROM subjects WHERE name = ?`, name)
	s, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get subject: %w", err)
	}
	return s, nil
}

// UpsertSubject creates the subject or replaces its schema. CreatedAt of an
// existing subject is kept.
func (db *DB) UpsertSubject(s models.Subject) error {
	schema, err := json.Marshal(s.Schema)
	if err != nil {
		return fmt.Errorf("index: marshal schema: %w", err)
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = db.conn.Exec(`
		INSERT INTO subjects (name, created_at, schema) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET schema = excluded.schema
	`, s.Name, createdAt.UTC(), string(schema))
	if err != nil {
		return fmt.Errorf("index: upsert subject: %w", err)
	}
	return nil
}

// DeleteSubject removes a subject. Deleting a missing subject is not an error.
func (db *DB) DeleteSubject(name string) error {
	if _, err := db.conn.Exec(`DELETE FROM subjects WHERE name = ?`, name); err != nil {
		return fmt.Errorf("index: delete subject: %w", err)
	}
	return nil
}

func scanSubject(s scanner) (*models.Subject, error) {
	var (
		out    models.Subject
		schema string
	)
	if err := s.Scan(&out.Name, &out.CreatedAt, &schema); err != nil {
		return nil, err
	}
	decodeColumn(schema, &out.Schema, "schema", slog.String("subject", out.Name))
	if out.Schema.Fields == nil {
		out.Schema.Fields = []models.SubjectField{}
	}
	return &out, nil
}
