package models

import (
	"strings"
	"time"
)

// Base subject names. They are seeded on startup and cannot be deleted.
const (
	SubjectPaper     = "paper"
	SubjectPlainNote = "plain-note"
	SubjectIdea      = "idea"
)

// SubjectField describes one input of a subject schema.
type SubjectField struct {
	Title string `json:"title" yaml:"title"`
	Type  string `json:"type" yaml:"type"` // "textarea", "link", "tags", ...
	Key   string `json:"key" yaml:"key"`
}

// SubjectSchema lists the fields a note of a subject carries.
type SubjectSchema struct {
	Fields []SubjectField `json:"fields"`
}

// Subject is a note type.
type Subject struct {
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	Schema    SubjectSchema `json:"schema"`
}

// BaseSubjects returns the built-in subjects with their default schemas.
func BaseSubjects() []Subject {
	return []Subject{
		{
			Name: SubjectPaper,
			Schema: SubjectSchema{Fields: []SubjectField{
				{Title: "Link", Type: "link", Key: "link"},
				{Title: "Problem", Type: "textarea", Key: "problem"},
				{Title: "Solution", Type: "textarea", Key: "solution"},
				{Title: "Limits", Type: "textarea", Key: "limit"},
				{Title: "Summary", Type: "textarea", Key: "summary"},
				{Title: "Details", Type: "textarea", Key: "details"},
				{Title: "Keywords", Type: "tags", Key: "keywords"},
			}},
		},
		{
			Name: SubjectPlainNote,
			Schema: SubjectSchema{Fields: []SubjectField{
				{Title: "Notes", Type: "textarea", Key: "details"},
			}},
		},
		{
			Name: SubjectIdea,
			Schema: SubjectSchema{Fields: []SubjectField{
				{Title: "Summary of Idea", Type: "textarea", Key: "idea_summary"},
			}},
		},
	}
}

// IsBaseSubject reports whether name (case-insensitive) is a built-in subject.
func IsBaseSubject(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SubjectPaper, SubjectPlainNote, SubjectIdea:
		return true
	}
	return false
}
