// Package storage defines the workspace file-system abstraction.
package storage

import "github.com/starford/horizon/internal/models"

// Provider is the interface for workspace file operations.
// All paths are relative to the workspace root.
type Provider interface {
	// Root returns the absolute workspace root.
	Root() string
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
	// Exists reports whether path exists.
	Exists(path string) (bool, error)
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)
	// Mkdir creates the directory at path (and parents) if missing.
	Mkdir(path string) error
	// ListMarkdown returns the names of .md files directly inside dir, sorted.
	ListMarkdown(dir string) ([]string, error)
	// ListFiles returns the names of regular files with extension ext
	// directly inside dir, sorted.
	ListFiles(dir, ext string) ([]string, error)
	// ListDirs returns the names of subdirectories directly inside dir, sorted.
	ListDirs(dir string) ([]string, error)
	// Walk returns metadata for every .md file under dir, recursively.
	Walk(dir string, skipDirs ...string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Move renames oldPath to newPath; it never overwrites an existing file.
	Move(oldPath, newPath string) error
}
