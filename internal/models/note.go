// Package models defines the domain types for notegraph.
package models

import "time"

// Note is a single knowledge note. Every field is defaulted at the ingestion
// boundary (parser, index scanning) so consumers never check for absence.
type Note struct {
	ID        string            `json:"id"`
	Path      string            `json:"path"`
	Title     string            `json:"title"`
	Subject   string            `json:"subject"`
	Problem   string            `json:"problem"`
	Solution  string            `json:"solution"`
	Limit     string            `json:"limit"`
	Details   string            `json:"details"`
	Tags      []string          `json:"tags"`
	Status    string            `json:"status"`
	Priority  *int              `json:"priority"`
	DueDate   string            `json:"due_date"`
	Props     map[string]string `json:"props"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Normalize replaces nil collections with empty ones.
func (n *Note) Normalize() {
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Props == nil {
		n.Props = map[string]string{}
	}
}

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
