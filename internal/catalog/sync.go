package catalog

import (
	"log/slog"
	"path"
	"time"

	"github.com/starford/horizon/internal/checksum"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/parser"
	"github.com/starford/horizon/internal/storage"
)

// Sync walks the story directory and brings the catalog up to date:
//   - new/changed story files are parsed and upserted
//   - files removed from disk are deleted from the catalog
//
// Catalog paths are relative to storyDir. The index directory is skipped.
func Sync(db StoryCatalog, store storage.Provider, storyDir string, logger *slog.Logger) error {
	metas, err := store.Walk(storyDir, storage.IndexDir)
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(path.Join(storyDir, m.Path))
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexStory(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteStory(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexStory parses a story file and upserts it. rel is relative to the
// story directory. A zero modTime is recorded as now.
func IndexStory(db StoryCatalog, rel string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	id, title := parser.StoryName(rel)
	if title == "" {
		title = res.Heading
	}
	if modTime.IsZero() {
		modTime = time.Now()
	}
	return db.UpsertStory(models.StoryRow{
		Path:      rel,
		ID:        id,
		Title:     title,
		Checksum:  checksum.Sum(data),
		Tags:      res.Tags,
		UpdatedAt: modTime,
	}, res.Body)
}
