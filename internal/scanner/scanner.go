// Package scanner discovers story files in a story directory.
package scanner

import (
	"fmt"
	"path"

	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/parser"
	"github.com/starford/horizon/internal/storage"
)

// Scanner lists stories through a storage.Provider.
type Scanner struct {
	store storage.Provider
}

// New creates a Scanner.
func New(store storage.Provider) *Scanner {
	return &Scanner{store: store}
}

// Scan returns the markdown filenames directly inside dir (relative to the
// workspace root), sorted by name. A missing directory yields an empty
// result and an error wrapping apperr.ErrNotFound.
func (s *Scanner) Scan(dir string) ([]string, error) {
	names, err := s.store.ListMarkdown(dir)
	if err != nil {
		return []string{}, fmt.Errorf("scanner: %w", err)
	}
	return names, nil
}

// ScanColumns treats every immediate subdirectory of dir as a column and
// returns its direct markdown children as stories, keyed by directory name.
func (s *Scanner) ScanColumns(dir string) (map[string][]models.Story, error) {
	out := make(map[string][]models.Story)
	dirs, err := s.store.ListDirs(dir)
	if err != nil {
		return out, fmt.Errorf("scanner: %w", err)
	}
	for _, col := range dirs {
		if col == storage.IndexDir {
			continue
		}
		names, err := s.store.ListMarkdown(path.Join(dir, col))
		if err != nil {
			return out, fmt.Errorf("scanner: column %s: %w", col, err)
		}
		stories := make([]models.Story, 0, len(names))
		for _, name := range names {
			stories = append(stories, NewStory(path.Join(col, name)))
		}
		out[col] = stories
	}
	return out, nil
}

// NewStory builds a Story from its path relative to the story directory.
func NewStory(rel string) models.Story {
	id, title := parser.StoryName(rel)
	return models.Story{
		ID:       id,
		Title:    title,
		Filename: path.Base(rel),
		Path:     rel,
	}
}
