package index

import "github.com/starford/notegraph/internal/models"

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n models.Note, checksum string) error
	DeleteNote(id string) error
	DeleteByPath(path string) (string, error)
	GetNote(id string) (*models.Note, error)
	AllNotes() ([]models.Note, error)
	ListNotes(q ListQuery) ([]models.Note, int, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	CountBySubject(subject string) (int, error)

	ListSubjects() ([]models.Subject, error)
	GetSubject(name string) (*models.Subject, error)
	UpsertSubject(s models.Subject) error
	DeleteSubject(name string) error

	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
