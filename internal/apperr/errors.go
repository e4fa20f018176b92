// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")

	// ErrBaseSubject is returned when a built-in subject would be deleted.
	ErrBaseSubject = errors.New("cannot delete base subject")
	// ErrSubjectInUse is returned when a subject still has notes.
	ErrSubjectInUse = errors.New("subject has existing notes")
)
