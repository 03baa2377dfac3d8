package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/horizon/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	KindCreated  = "created"
	KindUpdated  = "updated"
	KindDeleted  = "deleted"
	KindIndex    = "index"
	KindSettings = "settings"
)

// EventCallback is called after a watcher-observed change. For story kinds
// path is relative to the story directory; for KindIndex it is the index
// record name; for KindSettings it is the settings file path.
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the story directory (recursively,
// including the index directory) and on the settings file, and processes
// events until ctx is cancelled.
//
// Story files are reindexed as they change. Rename events trigger a
// debounced reconciliation pass that removes catalog rows whose files no
// longer exist. A missing story directory is logged and only the settings
// file is watched.
func Watch(ctx context.Context, db *DB, store storage.Provider, storyDir, settingsFile string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	notify := func(kind, p string) {
		if cb != nil {
			cb(kind, p)
		}
	}

	settingsAbs, err := store.Abs(settingsFile)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(settingsAbs)); err != nil {
		return err
	}

	storyRoot := ""
	if storyDir != "" {
		abs, err := store.Abs(storyDir)
		if err != nil {
			return err
		}
		if ok, _ := store.IsDir(storyDir); ok {
			if err := addDirsRecursive(w, abs); err != nil {
				return err
			}
			storyRoot = abs
		} else {
			logger.Warn("watcher: story directory not found", slog.String("dir", storyDir))
		}
	}

	logger.Info("watcher: started", slog.String("story_dir", storyRoot), slog.String("settings", settingsAbs))

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
			reconcile(db, store, storyDir, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if absPath == settingsAbs {
				logger.Debug("watcher: settings changed", slog.String("op", ev.Op.String()))
				notify(KindSettings, settingsFile)
				continue
			}

			if storyRoot == "" || !within(storyRoot, absPath) {
				continue
			}

			rel, relErr := filepath.Rel(storyRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if isIndexPath(rel) {
				if strings.HasSuffix(rel, ".json") {
					notify(KindIndex, path.Base(rel))
				} else if ev.Op&fsnotify.Create != 0 && rel == storage.IndexDir {
					if addErr := w.Add(absPath); addErr != nil {
						logger.Warn("watcher: add index dir failed", slog.String("error", addErr.Error()))
					}
				}
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					indexNewDir(db, store, storyDir, storyRoot, absPath, logger, notify)
					continue
				}
			}

			if !strings.HasSuffix(absPath, storage.MarkdownExt) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(path.Join(storyDir, rel))
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if idxErr := IndexStory(db, rel, data, time.Now()); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := KindUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = KindCreated
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
				notify(kind, rel)

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteStory(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				notify(KindDeleted, rel)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as
				// a Create when it stays inside a watched directory.
				if delErr := db.DeleteStory(rel); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
					notify(KindDeleted, rel)
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

// reconcile removes rows without a file on disk and indexes files that are
// new or changed.
func reconcile(db *DB, store storage.Provider, storyDir string, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.Walk(storyDir, storage.IndexDir)
	if err != nil {
		logger.Warn("reconcile: walk failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := db.DeleteStory(p); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", p))
				notify(KindDeleted, p)
			}
		}
	}

	for _, m := range metas {
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, readErr := store.Read(path.Join(storyDir, m.Path))
		if readErr != nil {
			continue
		}
		if idxErr := IndexStory(db, m.Path, data, m.UpdatedAt); idxErr == nil {
			logger.Debug("reconcile: indexed new", slog.String("path", m.Path))
			notify(KindCreated, m.Path)
		}
	}
}

// indexNewDir indexes the story files already present in a directory that
// appeared after the watcher started.
func indexNewDir(db *DB, store storage.Provider, storyDir, storyRoot, dirPath string, logger *slog.Logger, notify EventCallback) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, storage.MarkdownExt) {
			return nil
		}
		rel, relErr := filepath.Rel(storyRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := store.Read(path.Join(storyDir, rel))
		if readErr != nil {
			return nil
		}
		if idxErr := IndexStory(db, rel, data, time.Now()); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			notify(KindCreated, rel)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

func isIndexPath(rel string) bool {
	return rel == storage.IndexDir || strings.HasPrefix(rel, storage.IndexDir+"/")
}
