// Package storage defines the note vault file-system abstraction.
package storage

import "github.com/starford/notegraph/internal/models"

// Provider is the interface for vault file operations. Paths are relative to
// the vault root.
type Provider interface {
	// List returns metadata for every note file (.md) under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Stat returns metadata for a single note file.
	Stat(path string) (models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute vault directory.
	Root() string
}

// AttachDir is the vault subdirectory holding images embedded in note
// details. Being hidden, it is skipped by listings and the watcher.
const AttachDir = ".attachments"

// NotePath returns the vault path of the note with the given id.
func NotePath(id string) string {
	return id + ".md"
}
