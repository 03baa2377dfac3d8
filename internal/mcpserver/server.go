// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Horizon board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/horizon/internal/boardservice"
	"github.com/starford/horizon/internal/mover"
)

// StoryFormatURI is the URI of the story format resource.
const StoryFormatURI = "horizon://story-format"

// Server wraps the MCP server with Horizon tools.
type Server struct {
	mcp *server.MCPServer
	svc *boardservice.Service
}

// New creates a new MCP server with all Horizon tools registered.
func New(svc *boardservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Horizon",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_board",
		mcp.WithDescription("Get the board: its columns in order and the stories in each column."),
	), s.getBoard)

	s.mcp.AddTool(mcp.NewTool("move_story",
		mcp.WithDescription("Move a story from one column to another. "+
			"Column names are the keys shown by get_board."),
		mcp.WithString("storyPath", mcp.Required(), mcp.Description("Story path as shown by get_board (e.g. PROJ-12.Fix login bug.md)")),
		mcp.WithString("sourceColumn", mcp.Required(), mcp.Description("Column the story is in")),
		mcp.WithString("targetColumn", mcp.Required(), mcp.Description("Column to move the story to")),
	), s.moveStory)

	s.mcp.AddTool(mcp.NewTool("read_story",
		mcp.WithDescription("Read the full Markdown content of a story."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Story path relative to the story directory")),
	), s.readStory)

	s.mcp.AddTool(mcp.NewTool("search_stories",
		mcp.WithDescription("Search stories by id, title, tag or body text."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchStories)

	s.mcp.AddTool(mcp.NewTool("list_unassigned",
		mcp.WithDescription("List stories that no column of a virtualized board holds."),
	), s.listUnassigned)

	s.mcp.AddResource(
		mcp.NewResource(StoryFormatURI, "Story Format",
			mcp.WithResourceDescription("How Horizon story files are named and organized."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readStoryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBoard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := s.svc.Refresh(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) moveStory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var r mover.Request
	var err error
	if r.StoryPath, err = req.RequireString("storyPath"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.SourceColumn, err = req.RequireString("sourceColumn"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.TargetColumn, err = req.RequireString("targetColumn"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ev := s.svc.MoveStory(ctx, r)
	if !ev.Success {
		return mcp.NewToolResultError(ev.Message), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s → %s", r.StoryPath, r.TargetColumn)), nil
}

func (s *Server) readStory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	story, err := s.svc.OpenStory(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(story.Content), nil
}

func (s *Server) searchStories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listUnassigned(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stories, err := s.svc.Unassigned(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(stories) == 0 {
		return mcp.NewToolResultText("no unassigned stories"), nil
	}
	names := make([]string, 0, len(stories))
	for _, st := range stories {
		names = append(names, st.Path)
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) readStoryFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      StoryFormatURI,
			MIMEType: "text/markdown",
			Text:     StoryFormatContract,
		},
	}, nil
}
