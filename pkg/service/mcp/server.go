package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const ToolName = "ask_crypto"

// Asker answers one question within the current session
type Asker interface {
	Ask(ctx context.Context, input string) (string, error)
}

// Server exposes the query pipeline as an MCP tool. Calls are serialized so the
// session sees one turn at a time.
type Server struct {
	asker  Asker
	mu     sync.Mutex
	server *mcp.Server
	logger *slog.Logger
}

type Option func(*Server)

// WithLogger attaches logger to the context of every tool call. Without it the
// pipeline logs to the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

type askParams struct {
	Question string `json:"question" jsonschema:"Question about cryptocurrencies in any language, e.g. price of bitcoin"`
}

func NewServer(asker Asker, version string, opts ...Option) *Server {
	s := &Server{
		asker: asker,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "cryptochat",
			Version: version,
		}, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolName,
		Description: "Answer a question about cryptocurrencies using live market data. Follow-up questions can refer to earlier ones.",
	}, s.ask)

	return s
}

// RunStdio serves over stdin/stdout until ctx is cancelled or the client disconnects
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "failed to run MCP server")
	}
	return nil
}

// Handler serves the streamable HTTP transport
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) ask(ctx context.Context, req *mcp.CallToolRequest, params *askParams) (*mcp.CallToolResult, any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logger != nil {
		ctx = logging.With(ctx, s.logger)
	}
	logging.From(ctx).Info("tool called", "tool", ToolName, "question", params.Question)

	answer, err := s.asker.Ask(ctx, params.Question)
	if errors.Is(err, chat.ErrEmptyQuery) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "Invalid input. Please enter a valid query."},
			},
		}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: answer},
		},
	}, nil, nil
}
