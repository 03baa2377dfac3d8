// Package boardservice is the board session: it owns the command surface
// (refresh, open story, open settings, move story) that the HTTP API and the
// MCP server call into.
package boardservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/board"
	"github.com/starford/horizon/internal/catalog"
	"github.com/starford/horizon/internal/checksum"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/mover"
	"github.com/starford/horizon/internal/parser"
	"github.com/starford/horizon/internal/scanner"
	"github.com/starford/horizon/internal/settings"
	"github.com/starford/horizon/internal/sse"
	"github.com/starford/horizon/internal/storage"
	"github.com/starford/horizon/internal/storyindex"
)

// Publisher receives session events. *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
	BoardUpdated()
}

// Deps are the collaborators of a Service. Store is required; Catalog and
// Events may be nil.
//
// Watched reports that a catalog.Watch loop keeps Catalog current. Refresh
// and Search then skip their full catalog sync.
type Deps struct {
	Store        storage.Provider
	Catalog      catalog.StoryCatalog
	Events       Publisher
	SettingsFile string
	Watched      bool
	Logger       *slog.Logger
}

// StoryDetail is the full representation of one story file.
type StoryDetail struct {
	Path        string         `json:"path"`
	AbsPath     string         `json:"absPath"`
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	IndexedAt   *time.Time     `json:"indexedAt,omitempty"`
}

// SettingsDetail describes the board settings file.
type SettingsDetail struct {
	Path     string             `json:"path"`
	Exists   bool               `json:"exists"`
	Content  string             `json:"content"`
	Board    *settings.Board    `json:"board"`
	Warnings []settings.Warning `json:"warnings"`
}

// MoveEvent is the result event of a move command.
type MoveEvent struct {
	RequestID    string `json:"requestId"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	StoryPath    string `json:"storyPath"`
	NewPath      string `json:"newPath,omitempty"`
	SourceColumn string `json:"sourceColumn"`
	TargetColumn string `json:"targetColumn"`
}

// Service is one board session over a workspace.
type Service struct {
	store        storage.Provider
	db           catalog.StoryCatalog
	events       Publisher
	settingsFile string
	watched      bool
	logger       *slog.Logger

	scanner *scanner.Scanner
	index   *storyindex.Store
	mover   *mover.Coordinator
}

// NewService creates a session. It fails when no workspace store is given.
func NewService(d Deps) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("boardservice: no workspace open")
	}
	if d.SettingsFile == "" {
		d.SettingsFile = settings.FileName
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	idx := storyindex.New(d.Store, d.Logger)
	return &Service{
		store:        d.Store,
		db:           d.Catalog,
		events:       d.Events,
		settingsFile: d.SettingsFile,
		watched:      d.Watched,
		logger:       d.Logger,
		scanner:      scanner.New(d.Store),
		index:        idx,
		mover:        mover.New(d.Store, idx, d.Logger),
	}, nil
}

// SettingsFile returns the settings file path relative to the workspace.
func (s *Service) SettingsFile() string {
	return s.settingsFile
}

// Settings loads and resolves the board settings. It never fails; problems
// are returned as warnings.
func (s *Service) Settings() (*settings.Board, []settings.Warning) {
	abs, err := s.store.Abs(s.settingsFile)
	if err != nil {
		return settings.Default(), []settings.Warning{{
			Level:   settings.LevelError,
			Message: fmt.Sprintf("Invalid settings file path: %v", err),
		}}
	}
	b, warns := settings.Load(abs)
	for _, w := range warns {
		s.logger.Debug("settings: "+w.Message, slog.String("level", string(w.Level)))
	}
	return b, warns
}

// Refresh rebuilds the board view from the current settings and story
// directory. It only fails when ctx is done; every other problem degrades
// to an empty column set plus a notice on the view.
func (s *Service) Refresh(ctx context.Context) (*board.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, warns := s.Settings()
	notices := append([]settings.Warning{}, warns...)
	notice := func(level settings.Level, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		notices = append(notices, settings.Warning{Level: level, Message: msg})
		s.logger.Warn("board: "+msg, slog.String("level", string(level)))
	}

	columns := map[string][]models.Story{}
	switch {
	case b.StoryDirectory == "":
		notice(settings.LevelWarning, "No story directory configured in %s.", s.settingsFile)
	case b.UseVirtualization:
		cols, err := s.index.Read(b)
		if err != nil {
			notice(settings.LevelError, "Could not read story index: %s", describe(err, b))
		}
		columns = cols
	default:
		cols, err := s.scanner.ScanColumns(b.StoryDirectory)
		if err != nil {
			notice(settings.LevelWarning, "Could not scan story directory: %s", describe(err, b))
		}
		columns = cols
	}

	if b.StoryDirectory != "" {
		if !s.watched {
			s.syncCatalog(b.StoryDirectory)
		}
		s.attachTags(columns)
	}

	view := board.Assemble(b, columns)
	view.Notices = notices
	s.logger.Debug("board refreshed",
		slog.Int("columns", len(view.Columns)),
		slog.Int("stories", view.StoryCount()))
	return view, nil
}

// OpenStory returns one story. storyPath is relative to the story directory.
func (s *Service) OpenStory(ctx context.Context, storyPath string) (*StoryDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, _ := s.Settings()
	if b.StoryDirectory == "" {
		return nil, fmt.Errorf("boardservice: no story directory configured: %w", apperr.ErrPrecondition)
	}
	rel, err := cleanStoryPath(storyPath)
	if err != nil {
		return nil, err
	}
	full := path.Join(b.StoryDirectory, rel)
	data, err := s.store.Read(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("boardservice: story %s: %w", rel, apperr.ErrNotFound)
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	abs, _ := s.store.Abs(full)
	id, title := parser.StoryName(rel)
	if title == "" {
		title = res.Heading
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	detail := &StoryDetail{
		Path:        rel,
		AbsPath:     abs,
		ID:          id,
		Title:       title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        tags,
		Frontmatter: res.Frontmatter,
	}
	if row := s.indexStory(rel, data, detail.Checksum); row != nil {
		detail.IndexedAt = &row.UpdatedAt
	}
	return detail, nil
}

// OpenSettings returns the settings file and its resolution. When the file
// does not exist, Content holds the default settings as JSON.
func (s *Service) OpenSettings(ctx context.Context) (*SettingsDetail, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := s.store.Abs(s.settingsFile)
	if err != nil {
		return nil, err
	}
	b, warns := s.Settings()
	detail := &SettingsDetail{Path: abs, Board: b, Warnings: nonNilSlice(warns)}

	data, err := s.store.Read(s.settingsFile)
	switch {
	case err == nil:
		detail.Exists = true
		detail.Content = string(data)
	case errors.Is(err, os.ErrNotExist):
		detail.Content, err = defaultSettingsJSON()
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return detail, nil
}

// MoveStory moves a story between columns and publishes the result as a
// story.moved event. On success a board.updated event follows and the
// catalog is brought up to date.
func (s *Service) MoveStory(ctx context.Context, req mover.Request) MoveEvent {
	ev := MoveEvent{
		RequestID:    uuid.NewString(),
		StoryPath:    req.StoryPath,
		SourceColumn: req.SourceColumn,
		TargetColumn: req.TargetColumn,
	}
	if err := ctx.Err(); err != nil {
		ev.Message = err.Error()
		s.publish(ev)
		return ev
	}

	b, _ := s.Settings()
	res := s.mover.MoveStory(req, b)
	ev.Success = res.Success
	ev.Message = res.Message
	ev.NewPath = res.NewPath

	s.logger.Debug("move story",
		slog.String("request_id", ev.RequestID),
		slog.String("story", req.StoryPath),
		slog.String("from", req.SourceColumn),
		slog.String("to", req.TargetColumn),
		slog.Bool("success", ev.Success))

	s.publish(ev)
	if ev.Success {
		if !b.UseVirtualization {
			s.syncCatalog(b.StoryDirectory)
		}
		s.NotifyBoardUpdated()
	}
	return ev
}

// NotifyBoardUpdated asks connected clients to re-render.
func (s *Service) NotifyBoardUpdated() {
	if s.events != nil {
		s.events.BoardUpdated()
	}
}

// Unassigned lists stories that no column of a virtualized board holds.
func (s *Service) Unassigned(ctx context.Context) ([]models.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, _ := s.Settings()
	return s.index.Unassigned(b)
}

// Orphans lists index records that belong to no configured column.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, _ := s.Settings()
	return s.index.Orphans(b)
}

// Search looks up stories in the catalog by id, title, tag or body text.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db == nil {
		return []catalog.SearchResult{}, nil
	}
	b, _ := s.Settings()
	if b.StoryDirectory != "" && !s.watched {
		s.syncCatalog(b.StoryDirectory)
	}
	return s.db.Search(query, limit)
}

func (s *Service) publish(ev MoveEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(sse.Event{Type: sse.EventStoryMoved, Data: ev})
}

func (s *Service) syncCatalog(storyDir string) {
	if s.db == nil {
		return
	}
	start := time.Now()
	if err := catalog.Sync(s.db, s.store, storyDir, s.logger); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("catalog sync failed", slog.String("error", err.Error()))
		}
		return
	}
	s.logger.Debug("catalog synced", slog.Duration("took", time.Since(start)))
}

// indexStory brings the catalog row of one opened story up to date when its
// stored checksum differs, and returns the row.
func (s *Service) indexStory(rel string, data []byte, sum string) *models.StoryRow {
	if s.db == nil {
		return nil
	}
	if cs, err := s.db.GetChecksum(rel); err != nil || cs != sum {
		if err := catalog.IndexStory(s.db, rel, data, time.Time{}); err != nil {
			s.logger.Warn("catalog index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return nil
		}
	}
	row, err := s.db.GetStory(rel)
	if err != nil {
		return nil
	}
	return row
}

func (s *Service) attachTags(columns map[string][]models.Story) {
	if s.db == nil {
		return
	}
	var paths []string
	for _, stories := range columns {
		for _, st := range stories {
			paths = append(paths, st.Path)
		}
	}
	tags, err := s.db.Tags(paths)
	if err != nil {
		s.logger.Warn("catalog tags failed", slog.String("error", err.Error()))
		return
	}
	for _, stories := range columns {
		for i := range stories {
			if t := tags[stories[i].Path]; len(t) > 0 {
				stories[i].Tags = t
			}
		}
	}
}

// describe turns a store or scanner error into a user-facing message.
func describe(err error, b *settings.Board) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("Story directory '%s' not found", b.StoryDirectory)
	case errors.Is(err, apperr.ErrPrecondition):
		msg := err.Error()
		msg = strings.TrimPrefix(msg, "storyindex: ")
		return strings.TrimSuffix(msg, ": "+apperr.ErrPrecondition.Error())
	default:
		return err.Error()
	}
}

// cleanStoryPath normalizes a story path and rejects paths that leave the
// story directory or do not name a markdown file.
func cleanStoryPath(p string) (string, error) {
	p = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, `\`, "/")), "/")
	if p == "" || !strings.HasSuffix(p, storage.MarkdownExt) {
		return "", fmt.Errorf("boardservice: invalid story path %q: %w", p, apperr.ErrNotFound)
	}
	if p == storage.IndexDir || strings.HasPrefix(p, storage.IndexDir+"/") {
		return "", fmt.Errorf("boardservice: invalid story path %q: %w", p, apperr.ErrNotFound)
	}
	return p, nil
}

// defaultSettingsJSON renders the default board settings in the settings
// file format.
func defaultSettingsJSON() (string, error) {
	d := settings.Default()
	data, err := json.MarshalIndent(struct {
		Name              string   `json:"name"`
		StoryDirectory    string   `json:"storyDirectory"`
		Theme             string   `json:"theme"`
		Columns           []string `json:"columns"`
		UseVirtualization bool     `json:"useVirtualization"`
	}{
		Name:              d.Name,
		StoryDirectory:    d.StoryDirectory,
		Theme:             d.Theme,
		Columns:           settings.DefaultColumns,
		UseVirtualization: d.UseVirtualization,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("boardservice: encode default settings: %w", err)
	}
	return string(data), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
