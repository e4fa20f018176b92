package index

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	indexed := 0
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		n, err := IndexFile(db, m.Path, data, m.UpdatedAt)
		if err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path), slog.String("id", n.ID))
	}

	removed := 0
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	logger.Info("sync: done",
		slog.Int("files", len(metas)),
		slog.Int("indexed", indexed),
		slog.Int("removed", removed))
	return nil
}

// IndexFile parses a note file and upserts it. Notes without an id in their
// frontmatter are keyed by their path stem; missing timestamps fall back to
// modTime.
func IndexFile(db NoteIndex, path string, data []byte, modTime time.Time) (models.Note, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return models.Note{}, fmt.Errorf("index: parse %s: %w", path, err)
	}
	n := res.Note
	n.Path = filepath.ToSlash(path)
	if n.ID == "" {
		n.ID = strings.TrimSuffix(n.Path, ".md")
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = modTime
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.UpdatedAt
	}
	if err := db.UpsertNote(n, checksum.Sum(data)); err != nil {
		return models.Note{}, err
	}
	return n, nil
}
