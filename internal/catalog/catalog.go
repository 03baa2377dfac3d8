package catalog

import "github.com/starford/horizon/internal/models"

// StoryCatalog defines the catalog operations Sync and the board session
// depend on.
type StoryCatalog interface {
	UpsertStory(s models.StoryRow, body string) error
	DeleteStory(path string) error
	GetChecksum(path string) (string, error)
	GetStory(path string) (*models.StoryRow, error)
	AllChecksums() (map[string]string, error)
	Tags(paths []string) (map[string][]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies StoryCatalog at compile time.
var _ StoryCatalog = (*DB)(nil)
