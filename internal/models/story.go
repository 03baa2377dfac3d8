// Package models defines the domain types for Horizon.
package models

import "time"

// Story is a single markdown card on the board.
type Story struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Filename string   `json:"filename"`
	Path     string   `json:"path"` // relative to the story directory
	Tags     []string `json:"tags,omitempty"`
}

// Column is a named lane in the board in its canonical (resolved) form.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
	Slug  string `json:"slug"`
}

// StoryRow is the catalog's view of a story file.
type StoryRow struct {
	Path      string    `json:"path"`
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileMetadata is a lightweight representation returned by storage listings.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
