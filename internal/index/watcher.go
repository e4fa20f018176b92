package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notegraph/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change with the
// event kind and the affected note id.
type EventCallback func(kind string, id string)

// Watch starts an fsnotify watcher on the vault root and re-indexes note
// files edited outside the service until ctx is cancelled. Writes made by
// the service itself are skipped because their checksum is already indexed.
//
// New directories are added to the watch list. Rename events trigger a
// debounced reconciliation pass against the vault listing.
func Watch(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger, cb EventCallback) error {
	root := store.Root()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, id string) {
		if cb != nil && id != "" {
			cb(kind, id)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if strings.HasPrefix(info.Name(), ".") {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					indexNewDir(db, store, absPath, logger, notify)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil || !storage.IsNoteFile(rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				if id, changed := reindex(db, store, rel, logger); changed {
					logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
					notify(kind, id)
				}

			case ev.Op&fsnotify.Remove != 0:
				id, delErr := db.DeleteByPath(filepath.ToSlash(rel))
				if delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				notify(EventDeleted, id)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new path
				// arrives as a Create if it stays inside a watched dir.
				id, delErr := db.DeleteByPath(filepath.ToSlash(rel))
				if delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					notify(EventDeleted, id)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reindex re-reads rel and upserts it when its checksum differs from the
// indexed one. It reports the note id and whether the index changed.
func reindex(db *DB, store storage.Provider, rel string, logger *slog.Logger) (string, bool) {
	meta, err := store.Stat(rel)
	if err != nil {
		logger.Warn("watcher: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	if cs, _ := db.GetChecksum(meta.Path); cs == meta.Checksum {
		return "", false
	}
	data, err := store.Read(rel)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	n, err := IndexFile(db, meta.Path, data, meta.UpdatedAt)
	if err != nil {
		logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return "", false
	}
	return n.ID, true
}

// reconcile removes index entries whose files are gone and indexes files
// that are new or changed on disk.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if id, delErr := db.DeleteByPath(p); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			notify(EventDeleted, id)
		}
	}

	for _, m := range metas {
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, readErr := store.Read(m.Path)
		if readErr != nil {
			continue
		}
		if n, idxErr := IndexFile(db, m.Path, data, m.UpdatedAt); idxErr == nil {
			logger.Debug("reconcile: indexed", slog.String("path", m.Path))
			notify(EventCreated, n.ID)
		}
	}
}

// indexNewDir indexes any note files found in a newly created directory.
func indexNewDir(db *DB, store storage.Provider, dirPath string, logger *slog.Logger, notify EventCallback) {
	root := store.Root()
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || !storage.IsNoteFile(rel) {
			return nil
		}
		if id, changed := reindex(db, store, rel, logger); changed {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			notify(EventCreated, id)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
