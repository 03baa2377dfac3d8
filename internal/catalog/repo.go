package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/models"
)

// SearchResult is one catalog search hit.
type SearchResult struct {
	Path  string   `json:"path"`
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// UpsertStory inserts or replaces a story row.
func (db *DB) UpsertStory(s models.StoryRow, body string) error {
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("catalog: encode tags: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT INTO stories (path, story_id, title, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			story_id   = excluded.story_id,
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, s.Path, s.ID, s.Title, s.Checksum, string(tagsJSON), body, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert story: %w", err)
	}
	return nil
}

// DeleteStory removes a story row. Deleting an unknown path is not an error.
func (db *DB) DeleteStory(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM stories WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete story: %w", err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a story, or "" if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM stories WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: get checksum: %w", err)
	}
	return cs, nil
}

// GetStory returns one catalog row.
func (db *DB) GetStory(path string) (*models.StoryRow, error) {
	var (
		row      models.StoryRow
		tagsJSON string
	)
	err := db.conn.QueryRow(`
		SELECT path, story_id, title, checksum, tags, updated_at
		FROM stories WHERE path = ?
	`, path).Scan(&row.Path, &row.ID, &row.Title, &row.Checksum, &tagsJSON, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: story %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get story: %w", err)
	}
	row.Tags = decodeTags(tagsJSON)
	return &row, nil
}

// AllChecksums returns path → checksum for every cataloged story.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM stories`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Tags returns the tags of each requested path that is cataloged. Paths
// without a row are absent from the result.
func (db *DB) Tags(paths []string) (map[string][]string, error) {
	out := make(map[string][]string, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	rows, err := db.conn.Query(`SELECT path, tags FROM stories WHERE path IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p, tagsJSON string
		if err := rows.Scan(&p, &tagsJSON); err != nil {
			return nil, err
		}
		out[p] = decodeTags(tagsJSON)
	}
	return out, rows.Err()
}

// Search matches query against story id, title, tags and body.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, story_id, title, tags
		FROM stories
		WHERE story_id LIKE ? OR title LIKE ? OR tags LIKE ? OR body LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var (
			r        SearchResult
			tagsJSON string
		)
		if err := rows.Scan(&r.Path, &r.ID, &r.Title, &tagsJSON); err != nil {
			return nil, err
		}
		r.Tags = decodeTags(tagsJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}
