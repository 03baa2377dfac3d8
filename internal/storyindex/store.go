// Package storyindex keeps per-column membership lists for a flat story
// directory. Each configured column owns one JSON record under
// <storyDir>/.horizon/<slug>.json holding an ordered array of filenames, so
// moving a card between columns is a metadata update and story files never
// change location.
//
// Records are pruned at read time (entries whose file is gone are skipped)
// and never at write time. Records of columns that are no longer configured
// are left in place and reported by Orphans.
package storyindex

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/scanner"
	"github.com/starford/horizon/internal/settings"
	"github.com/starford/horizon/internal/storage"
)

// RecordExt is the extension of index record files.
const RecordExt = ".json"

// ErrCorruptRecord is returned when an index record cannot be decoded.
var ErrCorruptRecord = errors.New("unparsable index record")

// Store reads and mutates the index records of a workspace.
//
// Read-modify-write cycles are serialized by an in-process mutex, so a
// single Store is the only writer its process needs. Two processes sharing
// a story directory can still lose updates.
type Store struct {
	store  storage.Provider
	scan   *scanner.Scanner
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a Store over the given workspace provider.
func New(store storage.Provider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: store, scan: scanner.New(store), logger: logger}
}

// Dir returns the index directory of a story directory.
func Dir(storyDir string) string {
	return path.Join(storyDir, storage.IndexDir)
}

// RecordPath returns the record path of the column with the given slug.
func RecordPath(storyDir, columnSlug string) string {
	return path.Join(Dir(storyDir), columnSlug+RecordExt)
}

// Initialize creates the index directory and one record per configured
// column. On first-time setup (index directory absent) the first column is
// seeded with every story in the directory and the others start empty.
// Existing records are never overwritten, so repeated calls are no-ops.
func (s *Store) Initialize(b *settings.Board) error {
	if err := s.check(b); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialize(b)
}

func (s *Store) initialize(b *settings.Board) error {
	dir := Dir(b.StoryDirectory)
	exists, err := s.store.IsDir(dir)
	if err != nil {
		return fmt.Errorf("storyindex: %w", err)
	}
	firstTime := !exists
	if firstTime {
		if err := s.store.Mkdir(dir); err != nil {
			return fmt.Errorf("storyindex: %w", err)
		}
	}

	var stories []string
	if firstTime {
		stories, err = s.scan.Scan(b.StoryDirectory)
		if err != nil {
			return fmt.Errorf("storyindex: %w", err)
		}
	}

	for i, col := range b.Columns {
		p := RecordPath(b.StoryDirectory, col.Slug)
		ok, err := s.store.Exists(p)
		if err != nil {
			return fmt.Errorf("storyindex: %w", err)
		}
		if ok {
			continue
		}
		members := []string{}
		if firstTime && i == 0 {
			members = stories
		}
		if err := s.writeRecord(p, members); err != nil {
			return err
		}
		s.logger.Debug("storyindex: record created",
			slog.String("column", col.Key),
			slog.Int("stories", len(members)))
	}
	if firstTime {
		s.logger.Info("storyindex: initialized",
			slog.String("dir", dir),
			slog.Int("stories", len(stories)))
	}
	return nil
}

// Read returns the stories of every configured column keyed by column key,
// in record order. Entries whose file no longer exists are skipped without
// rewriting the record, and repeated entries are shown once. A missing
// record is created empty; an unparsable one is logged and read as empty.
//
// When the index directory does not exist yet, Read initializes it first and
// returns the freshly seeded state.
func (s *Store) Read(b *settings.Board) (map[string][]models.Story, error) {
	out := make(map[string][]models.Story, len(b.Columns))
	if err := s.check(b); err != nil {
		return out, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.store.IsDir(Dir(b.StoryDirectory)); err != nil {
		return out, fmt.Errorf("storyindex: %w", err)
	} else if !ok {
		if err := s.initialize(b); err != nil {
			return out, err
		}
	}

	present, err := s.presentStories(b.StoryDirectory)
	if err != nil {
		return out, err
	}

	for _, col := range b.Columns {
		members, err := s.loadOrCreate(RecordPath(b.StoryDirectory, col.Slug))
		if err != nil {
			if !errors.Is(err, ErrCorruptRecord) {
				return out, err
			}
			s.logger.Warn("storyindex: skipping record",
				slog.String("column", col.Key),
				slog.String("error", err.Error()))
			members = nil
		}

		seen := make(map[string]struct{}, len(members))
		stories := make([]models.Story, 0, len(members))
		for _, name := range members {
			if _, ok := present[name]; !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			stories = append(stories, scanner.NewStory(name))
		}
		out[col.Key] = stories
	}
	return out, nil
}

// Move removes filename from the source column's record and appends it to
// the target column's record unless already present, then writes both
// records. Removing an absent entry is not an error. Only the base name of
// filename is recorded.
//
// The two record writes are not atomic as a pair: a crash in between can
// leave the story in neither column (see Unassigned) or in both.
func (s *Store) Move(filename, source, target string, b *settings.Board) error {
	if err := s.check(b); err != nil {
		return err
	}
	src, ok := b.Column(source)
	if !ok {
		return fmt.Errorf("storyindex: unknown column %q: %w", source, apperr.ErrPrecondition)
	}
	dst, ok := b.Column(target)
	if !ok {
		return fmt.Errorf("storyindex: unknown column %q: %w", target, apperr.ErrPrecondition)
	}
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == ".." || !strings.HasSuffix(name, storage.MarkdownExt) {
		return fmt.Errorf("storyindex: invalid story filename %q: %w", filename, apperr.ErrPrecondition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.store.IsDir(Dir(b.StoryDirectory)); err != nil {
		return fmt.Errorf("storyindex: %w", err)
	} else if !ok {
		if err := s.initialize(b); err != nil {
			return err
		}
	}

	srcPath := RecordPath(b.StoryDirectory, src.Slug)
	dstPath := RecordPath(b.StoryDirectory, dst.Slug)

	srcMembers, err := s.loadOrCreate(srcPath)
	if err != nil {
		return err
	}
	if srcPath == dstPath {
		if slices.Contains(srcMembers, name) {
			return nil
		}
		return s.writeRecord(dstPath, append(srcMembers, name))
	}
	dstMembers, err := s.loadOrCreate(dstPath)
	if err != nil {
		return err
	}

	srcMembers = remove(srcMembers, name)
	if !slices.Contains(dstMembers, name) {
		dstMembers = append(dstMembers, name)
	}

	if err := s.writeRecord(srcPath, srcMembers); err != nil {
		return err
	}
	if err := s.writeRecord(dstPath, dstMembers); err != nil {
		return err
	}
	s.logger.Info("storyindex: story moved",
		slog.String("story", name),
		slog.String("from", src.Key),
		slog.String("to", dst.Key))
	return nil
}

// Unassigned returns the stories in the story directory that no configured
// column lists, sorted by filename. Records are not modified.
func (s *Store) Unassigned(b *settings.Board) ([]models.Story, error) {
	if err := s.check(b); err != nil {
		return []models.Story{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.scan.Scan(b.StoryDirectory)
	if err != nil {
		return []models.Story{}, fmt.Errorf("storyindex: %w", err)
	}

	assigned := make(map[string]struct{})
	for _, col := range b.Columns {
		members, _, err := s.load(RecordPath(b.StoryDirectory, col.Slug))
		if err != nil {
			s.logger.Warn("storyindex: skipping record",
				slog.String("column", col.Key),
				slog.String("error", err.Error()))
			continue
		}
		for _, m := range members {
			assigned[m] = struct{}{}
		}
	}

	out := []models.Story{}
	for _, n := range names {
		if _, ok := assigned[n]; !ok {
			out = append(out, scanner.NewStory(n))
		}
	}
	return out, nil
}

// Orphans returns the slugs of records that belong to no configured column.
// Orphaned records are never deleted.
func (s *Store) Orphans(b *settings.Board) ([]string, error) {
	if err := s.check(b); err != nil {
		return []string{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := Dir(b.StoryDirectory)
	if ok, err := s.store.IsDir(dir); err != nil || !ok {
		return []string{}, err
	}
	files, err := s.store.ListFiles(dir, RecordExt)
	if err != nil {
		return []string{}, fmt.Errorf("storyindex: list records: %w", err)
	}
	configured := make(map[string]struct{}, len(b.Columns))
	for _, col := range b.Columns {
		configured[col.Slug] = struct{}{}
	}
	out := []string{}
	for _, f := range files {
		slug := strings.TrimSuffix(f, RecordExt)
		if _, ok := configured[slug]; !ok {
			out = append(out, slug)
		}
	}
	sort.Strings(out)
	return out, nil
}

// check verifies the board allows index operations.
func (s *Store) check(b *settings.Board) error {
	if b == nil || !b.UseVirtualization {
		return fmt.Errorf("storyindex: virtualization is not enabled: %w", apperr.ErrPrecondition)
	}
	if b.StoryDirectory == "" {
		return fmt.Errorf("storyindex: no story directory configured: %w", apperr.ErrPrecondition)
	}
	ok, err := s.store.IsDir(b.StoryDirectory)
	if err != nil {
		return fmt.Errorf("storyindex: story directory %q: %v: %w", b.StoryDirectory, err, apperr.ErrPrecondition)
	}
	if !ok {
		return fmt.Errorf("storyindex: story directory %q not found: %w", b.StoryDirectory, apperr.ErrPrecondition)
	}
	return nil
}

func (s *Store) presentStories(storyDir string) (map[string]struct{}, error) {
	names, err := s.scan.Scan(storyDir)
	if err != nil {
		return nil, fmt.Errorf("storyindex: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// load reads a record. A missing record yields (nil, false, nil).
func (s *Store) load(p string) ([]string, bool, error) {
	ok, err := s.store.Exists(p)
	if err != nil {
		return nil, false, fmt.Errorf("storyindex: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	data, err := s.store.Read(p)
	if err != nil {
		return nil, true, fmt.Errorf("storyindex: %w", err)
	}
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, true, fmt.Errorf("storyindex: %s: %w: %v", path.Base(p), ErrCorruptRecord, err)
	}
	return members, true, nil
}

// loadOrCreate reads a record, writing an empty one first if it is missing.
func (s *Store) loadOrCreate(p string) ([]string, error) {
	members, ok, err := s.load(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.writeRecord(p, []string{}); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	return members, nil
}

func (s *Store) writeRecord(p string, members []string) error {
	if members == nil {
		members = []string{}
	}
	data, err := json.MarshalIndent(members, "", "  ")
	if err != nil {
		return fmt.Errorf("storyindex: encode %s: %w", path.Base(p), err)
	}
	if err := s.store.Write(p, data); err != nil {
		return fmt.Errorf("storyindex: %w", err)
	}
	return nil
}

func remove(list []string, name string) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		if m != name {
			out = append(out, m)
		}
	}
	return out
}
