// Package mover moves a story between columns, either by updating the
// column index records (virtualized boards) or by renaming the story file
// into another column directory.
package mover

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/horizon/internal/apperr"
	"github.com/starford/horizon/internal/settings"
	"github.com/starford/horizon/internal/storage"
	"github.com/starford/horizon/internal/storyindex"
)

// Request asks for a story to change column. StoryPath is the story's path
// relative to the story directory (as shown on the board) or an absolute
// path; only its base name identifies the story.
type Request struct {
	StoryPath    string `json:"storyPath"`
	SourceColumn string `json:"sourceColumn"`
	TargetColumn string `json:"targetColumn"`
}

// Result is the uniform outcome of a move. NewPath is the absolute path of
// the story file after the move.
type Result struct {
	Success bool   `json:"success"`
	NewPath string `json:"newPath,omitempty"`
	Message string `json:"message,omitempty"`
}

// Coordinator dispatches moves to the index store or the file system.
type Coordinator struct {
	store  storage.Provider
	index  *storyindex.Store
	logger *slog.Logger
}

// New creates a Coordinator.
func New(store storage.Provider, index *storyindex.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, index: index, logger: logger}
}

// MoveStory moves a story and reports the outcome. It never panics and
// never returns an error: every failure is a Result with Success false.
func (c *Coordinator) MoveStory(req Request, b *settings.Board) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("mover: panic", slog.Any("panic", r))
			res = failure("Error moving story: %v", r)
		}
	}()

	name := path.Base(strings.ReplaceAll(req.StoryPath, `\`, "/"))
	if req.StoryPath == "" || name == "." || name == "/" {
		return failure("No story specified")
	}
	if name == ".." || !strings.HasSuffix(name, storage.MarkdownExt) {
		return failure("'%s' is not a story file", req.StoryPath)
	}
	if b.StoryDirectory == "" {
		return failure("No story directory configured in settings")
	}
	if ok, _ := c.store.IsDir(b.StoryDirectory); !ok {
		return failure("Story directory '%s' not found", b.StoryDirectory)
	}

	if b.UseVirtualization {
		res = c.moveVirtual(name, req, b)
	} else {
		res = c.movePhysical(name, req, b)
	}
	if res.Success {
		c.logger.Info("mover: story moved",
			slog.String("story", name),
			slog.String("from", req.SourceColumn),
			slog.String("to", req.TargetColumn),
			slog.Bool("virtualized", b.UseVirtualization))
	} else {
		c.logger.Warn("mover: move failed",
			slog.String("story", name),
			slog.String("message", res.Message))
	}
	return res
}

func (c *Coordinator) moveVirtual(name string, req Request, b *settings.Board) Result {
	for _, col := range []string{req.SourceColumn, req.TargetColumn} {
		if _, ok := b.Column(col); !ok {
			return failure("Column '%s' is not configured", col)
		}
	}
	if err := c.index.Move(name, req.SourceColumn, req.TargetColumn, b); err != nil {
		if errors.Is(err, apperr.ErrPrecondition) {
			return failure("Cannot move story: %v", err)
		}
		return failure("Error moving story: %v", err)
	}
	abs, err := c.store.Abs(path.Join(b.StoryDirectory, name))
	if err != nil {
		return failure("Error moving story: %v", err)
	}
	return Result{Success: true, NewPath: abs}
}

func (c *Coordinator) movePhysical(name string, req Request, b *settings.Board) Result {
	sourceDir := path.Join(b.StoryDirectory, req.SourceColumn)
	targetDir := path.Join(b.StoryDirectory, req.TargetColumn)

	if !c.isColumnDir(b.StoryDirectory, req.SourceColumn) {
		return failure("Source directory '%s' not found", req.SourceColumn)
	}
	if !c.isColumnDir(b.StoryDirectory, req.TargetColumn) {
		return failure("Target directory '%s' not found", req.TargetColumn)
	}

	oldPath := path.Join(sourceDir, name)
	if ok, _ := c.store.Exists(oldPath); !ok {
		return failure("Story '%s' not found in the %s column", name, req.SourceColumn)
	}

	newPath := path.Join(targetDir, name)
	if sourceDir == targetDir {
		abs, _ := c.store.Abs(newPath)
		return Result{Success: true, NewPath: abs}
	}
	if ok, _ := c.store.Exists(newPath); ok {
		return failure("A story with this name already exists in the %s column", req.TargetColumn)
	}

	if err := c.store.Move(oldPath, newPath); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return failure("A story with this name already exists in the %s column", req.TargetColumn)
		}
		return failure("Error moving story file: %v", err)
	}
	abs, err := c.store.Abs(newPath)
	if err != nil {
		return failure("Error moving story file: %v", err)
	}
	return Result{Success: true, NewPath: abs}
}

// isColumnDir reports whether column names a directory directly inside
// storyDir. Names that would leave the story directory are rejected.
func (c *Coordinator) isColumnDir(storyDir, column string) bool {
	if column == "" || column == "." || column == ".." || column == storage.IndexDir || strings.ContainsAny(column, `/\`) {
		return false
	}
	ok, _ := c.store.IsDir(path.Join(storyDir, column))
	return ok
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}
