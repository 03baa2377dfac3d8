// Package testutil provides shared test helpers for setting up workspaces
// and catalog databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/horizon/internal/catalog"
	"github.com/starford/horizon/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "horizon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace populated with files (path
// relative to the workspace → content) and returns its root and provider.
// A path ending in "/" creates an empty directory.
func TestWorkspace(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	for p, content := range files {
		if len(p) > 0 && p[len(p)-1] == '/' {
			if err := store.Mkdir(p[:len(p)-1]); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := store.Write(p, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	return store.Root(), store
}
