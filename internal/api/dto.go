package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/horizon/internal/board"
	"github.com/starford/horizon/internal/boardservice"
	"github.com/starford/horizon/internal/catalog"
	"github.com/starford/horizon/internal/models"
	"github.com/starford/horizon/internal/mover"
)

// MoveStoryRequest is the request body for moving a story between columns.
type MoveStoryRequest struct {
	StoryPath    string `json:"storyPath" example:"PROJ-12.Fix login bug.md" validate:"required"`
	SourceColumn string `json:"sourceColumn" example:"To Do" validate:"required"`
	TargetColumn string `json:"targetColumn" example:"Done" validate:"required"`
}

// Validate checks that every field of the move request is set.
func (r MoveStoryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StoryPath, validation.Required),
		validation.Field(&r.SourceColumn, validation.Required),
		validation.Field(&r.TargetColumn, validation.Required),
	)
}

func (r MoveStoryRequest) toMover() mover.Request {
	return mover.Request{
		StoryPath:    r.StoryPath,
		SourceColumn: r.SourceColumn,
		TargetColumn: r.TargetColumn,
	}
}

// BoardView is the board response type (aliased from the view layer).
type BoardView = board.View

// StoryDetail is the full story response type (aliased from the session layer).
type StoryDetail = boardservice.StoryDetail

// SettingsDetail is the settings response type (aliased from the session layer).
type SettingsDetail = boardservice.SettingsDetail

// MoveEvent is the move result (aliased from the session layer).
type MoveEvent = boardservice.MoveEvent

// SearchResponse wraps catalog search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// UnassignedResponse lists stories that no column holds.
type UnassignedResponse struct {
	Stories []models.Story `json:"stories" validate:"required"`
}

// OrphansResponse lists index records that belong to no configured column.
type OrphansResponse struct {
	Records []string `json:"records" example:"archive" validate:"required"`
}
