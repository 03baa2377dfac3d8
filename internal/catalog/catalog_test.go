package catalog

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "horizon-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) *storage.FS {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM stories`).Scan(&count); err != nil {
		t.Fatalf("stories table missing: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	row := models.StoryRow{
		Path:      "PROJ-1.Login.md",
		ID:        "PROJ-1",
		Title:     "Login",
		Checksum:  "abc123",
		Tags:      []string{"auth", "web"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertStory(row, "body"); err != nil {
		t.Fatalf("UpsertStory: %v", err)
	}
	cs, err := db.GetChecksum("PROJ-1.Login.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
	got, err := db.GetStory("PROJ-1.Login.md")
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}
	if got.ID != "PROJ-1" || got.Title != "Login" || len(got.Tags) != 2 {
		t.Errorf("GetStory = %+v", got)
	}
}

func TestGetStory_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetStory("missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertStory(models.StoryRow{Path: "a.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "old")
	_ = db.UpsertStory(models.StoryRow{Path: "a.md", Title: "New", Checksum: "2", Tags: []string{"x"}, UpdatedAt: now}, "new")

	got, err := db.GetStory("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New" || got.Checksum != "2" {
		t.Errorf("row not updated: %+v", got)
	}
}

func TestUpsertStoresTagsAsJSONArray(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	if err := db.UpsertStory(models.StoryRow{Path: "none.md", Checksum: "1", UpdatedAt: now}, ""); err != nil {
		t.Fatalf("UpsertStory: %v", err)
	}
	if err := db.UpsertStory(models.StoryRow{Path: "two.md", Checksum: "2", Tags: []string{"a", "b\"c"}, UpdatedAt: now}, ""); err != nil {
		t.Fatalf("UpsertStory: %v", err)
	}

	raw := func(path string) string {
		var tags string
		if err := db.conn.QueryRow(`SELECT tags FROM stories WHERE path = ?`, path).Scan(&tags); err != nil {
			t.Fatal(err)
		}
		return tags
	}
	if got := raw("none.md"); got != "[]" {
		t.Errorf("nil tags stored as %q, want []", got)
	}
	if got := raw("two.md"); got != `["a","b\"c"]` {
		t.Errorf("tags stored as %q", got)
	}
	row, err := db.GetStory("two.md")
	if err != nil {
		t.Fatal(err)
	}
	if len(row.Tags) != 2 || row.Tags[1] != `b"c` {
		t.Errorf("decoded tags = %v", row.Tags)
	}
}

func TestDeleteStory(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStory(models.StoryRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()}, "")
	if err := db.DeleteStory("del.md"); err != nil {
		t.Fatalf("DeleteStory: %v", err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs != "" {
		t.Errorf("deleted story still has checksum %q", cs)
	}
	if err := db.DeleteStory("never-existed.md"); err != nil {
		t.Errorf("deleting unknown path: %v", err)
	}
}

func TestTags(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStory(models.StoryRow{Path: "a.md", Checksum: "1", Tags: []string{"one"}, UpdatedAt: time.Now()}, "")
	_ = db.UpsertStory(models.StoryRow{Path: "b.md", Checksum: "2", UpdatedAt: time.Now()}, "")

	tags, err := db.Tags([]string{"a.md", "b.md", "c.md"})
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags["a.md"]) != 1 || tags["a.md"][0] != "one" {
		t.Errorf("a.md tags = %v", tags["a.md"])
	}
	if got, ok := tags["b.md"]; !ok || len(got) != 0 {
		t.Errorf("b.md tags = %v, %v", got, ok)
	}
	if _, ok := tags["c.md"]; ok {
		t.Error("uncataloged path should be absent")
	}

	empty, err := db.Tags(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Tags(nil) = %v, %v", empty, err)
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertStory(models.StoryRow{Path: "PROJ-1.Login.md", ID: "PROJ-1", Title: "Login", Checksum: "1", UpdatedAt: time.Now()}, "")
	_ = db.UpsertStory(models.StoryRow{Path: "PROJ-2.Logout.md", ID: "PROJ-2", Title: "Logout", Checksum: "2", Tags: []string{"urgent"}, UpdatedAt: time.Now()}, "")
	_ = db.UpsertStory(models.StoryRow{Path: "OPS-7.Deploy.md", ID: "OPS-7", Title: "Deploy", Checksum: "3", UpdatedAt: time.Now()}, "uniqueword inside")

	cases := map[string]int{
		"Log":        2,
		"PROJ-2":     1,
		"urgent":     1,
		"uniqueword": 1,
		"nothing":    0,
	}
	for q, want := range cases {
		res, err := db.Search(q, 10)
		if err != nil {
			t.Fatalf("Search(%q): %v", q, err)
		}
		if len(res) != want {
			t.Errorf("Search(%q) = %d hits, want %d", q, len(res), want)
		}
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	store := testStore(t)
	_ = store.Write("stories/PROJ-1.Login.md", []byte("---\ntags: [auth]\n---\nBody #web\n"))
	_ = store.Write("stories/Doing/PROJ-2.Logout.md", []byte("# Logout\n"))
	_ = store.Write("stories/.horizon/to-do.json", []byte(`["PROJ-1.Login.md"]`))
	_ = db.UpsertStory(models.StoryRow{Path: "gone.md", Checksum: "x", UpdatedAt: time.Now()}, "")

	if err := Sync(db, store, "stories", quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	sums, _ := db.AllChecksums()
	if len(sums) != 2 {
		t.Fatalf("catalog = %v, want 2 rows", sums)
	}
	if _, ok := sums["Doing/PROJ-2.Logout.md"]; !ok {
		t.Error("column story not cataloged")
	}
	row, err := db.GetStory("PROJ-1.Login.md")
	if err != nil {
		t.Fatal(err)
	}
	if row.ID != "PROJ-1" || row.Title != "Login" {
		t.Errorf("row = %+v", row)
	}
	if len(row.Tags) != 2 {
		t.Errorf("tags = %v, want [auth web]", row.Tags)
	}
}

func TestSync_MissingDir(t *testing.T) {
	db := testDB(t)
	store := testStore(t)
	err := Sync(db, store, "missing", quietLogger())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
