package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/roomdex/internal/gateway"
	"github.com/Aman-CERP/roomdex/pkg/version"
)

// Searcher is the read side the tools call into. *gateway.Service
// implements it.
type Searcher interface {
	Search(ctx context.Context, index, text string, before *int64) (*gateway.Page, error)
	Rooms(ctx context.Context) ([]gateway.Group, error)
}

// Server is the MCP server for roomdex.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	logger   *slog.Logger
}

// NewServer creates a new MCP server over searcher.
func NewServer(searcher Searcher, logger *slog.Logger) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{searcher: searcher, logger: logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "roomdex",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with the given arguments, bypassing the
// transport.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchMessages:
		in := SearchMessagesInput{}
		in.Index, _ = args["index"].(string)
		in.Query, _ = args["query"].(string)
		if b, ok := numberArg(args["before"]); ok {
			in.Before = &b
		}
		_, out, err := s.searchMessages(ctx, nil, in)
		if err != nil {
			return nil, err
		}
		return out, nil

	case ToolListRooms:
		_, out, err := s.listRooms(ctx, nil, ListRoomsInput{})
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func numberArg(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func (s *Server) registerTools() {
	for _, t := range tools {
		switch t.Name {
		case ToolSearchMessages:
			mcp.AddTool(s.mcp, &mcp.Tool{Name: t.Name, Description: t.Description}, s.searchMessages)
		case ToolListRooms:
			mcp.AddTool(s.mcp, &mcp.Tool{Name: t.Name, Description: t.Description}, s.listRooms)
		}
		s.logger.Debug("tool_registered", slog.String("name", t.Name))
	}
}

func (s *Server) searchMessages(ctx context.Context, _ *mcp.CallToolRequest, in SearchMessagesInput) (
	*mcp.CallToolResult,
	SearchMessagesOutput,
	error,
) {
	if in.Index == "" {
		return nil, SearchMessagesOutput{}, NewInvalidParamsError("index parameter is required")
	}

	requestID := generateRequestID()
	start := time.Now()
	s.logger.Debug("search_started",
		slog.String("request_id", requestID),
		slog.String("index", in.Index),
		slog.String("query", in.Query))

	page, err := s.searcher.Search(ctx, in.Index, in.Query, in.Before)
	if err != nil {
		s.logger.Warn("search_failed",
			slog.String("request_id", requestID),
			slog.String("index", in.Index),
			slog.String("error", err.Error()))
		return nil, SearchMessagesOutput{}, MapError(err)
	}

	s.logger.Debug("search_completed",
		slog.String("request_id", requestID),
		slog.Int("results", len(page.Messages)),
		slog.Duration("duration", time.Since(start)))

	out := SearchMessagesOutput{
		Messages:   page.Messages,
		HasMore:    page.HasMore,
		NextBefore: nextBefore(page),
	}
	return textResult(FormatMessages(in.Index, in.Query, page)), out, nil
}

func (s *Server) listRooms(ctx context.Context, _ *mcp.CallToolRequest, _ ListRoomsInput) (
	*mcp.CallToolResult,
	ListRoomsOutput,
	error,
) {
	groups, err := s.searcher.Rooms(ctx)
	if err != nil {
		return nil, ListRoomsOutput{}, MapError(err)
	}
	return textResult(FormatRooms(groups)), ListRoomsOutput{Rooms: groups}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server on the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
