// Package mcpserver exposes the course tools over the Model Context Protocol
// so external assistants can search the indexed courses directly.
package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"courserag/internal/domain"
	"courserag/internal/tools"
)

const Version = "0.1.0"

// SearchInput is the input schema for search_course_content.
type SearchInput struct {
	Query        string `json:"query" jsonschema:"what to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema:"course title, partial matches work"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema:"specific lesson number to search within"`
}

// OutlineInput is the input schema for get_course_outline.
type OutlineInput struct {
	CourseName string `json:"course_name" jsonschema:"course title, partial matches work"`
}

// ToolOutput is the structured result of either tool.
type ToolOutput struct {
	Result  string          `json:"result"`
	Sources []domain.Source `json:"sources,omitempty"`
}

type Server struct {
	index  tools.CourseIndex
	server *mcp.Server
	log    *zap.Logger
}

func New(index tools.CourseIndex, log *zap.Logger) (*Server, error) {
	if index == nil {
		return nil, errors.New("course index is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		index:  index,
		server: mcp.NewServer(&mcp.Implementation{Name: "courserag", Version: Version}, nil),
		log:    log,
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	search := tools.NewSearchTool(s.index).Definition()
	outline := tools.NewOutlineTool(s.index).Definition()
	mcp.AddTool(s.server, &mcp.Tool{Name: search.Name, Description: search.Description}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{Name: outline.Name, Description: outline.Description}, s.handleOutline)
}

// Each call gets its own tool instance so concurrent clients never see each
// other's sources.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, ToolOutput, error) {
	params := tools.SearchParams{
		Query:        in.Query,
		CourseName:   in.CourseName,
		LessonNumber: in.LessonNumber,
	}
	if err := tools.ValidateParams(params); err != nil {
		return nil, ToolOutput{}, err
	}
	tool := tools.NewSearchTool(s.index)
	out, err := tool.Execute(ctx, params)
	if err != nil {
		s.log.Warn("mcp search failed", zap.String("query", in.Query), zap.Error(err))
		return nil, ToolOutput{}, err
	}
	return nil, ToolOutput{Result: out, Sources: tool.LastSources()}, nil
}

func (s *Server) handleOutline(ctx context.Context, _ *mcp.CallToolRequest, in OutlineInput) (*mcp.CallToolResult, ToolOutput, error) {
	params := tools.OutlineParams{CourseName: in.CourseName}
	if err := tools.ValidateParams(params); err != nil {
		return nil, ToolOutput{}, err
	}
	out, err := tools.NewOutlineTool(s.index).Execute(ctx, params)
	if err != nil {
		s.log.Warn("mcp outline failed", zap.String("course", in.CourseName), zap.Error(err))
		return nil, ToolOutput{}, err
	}
	return nil, ToolOutput{Result: out}, nil
}
