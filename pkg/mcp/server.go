package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/pkg/schema"
)

// ChatProcessor runs one chat request. Satisfied by *coordinator.Coordinator.
type ChatProcessor interface {
	ProcessRequest(ctx context.Context, req schema.ChatRequest) schema.ChatResponse
}

// ActionLister lists the registered executors. Satisfied by *actions.Registry.
type ActionLister interface {
	List() []actions.ExecutorInfo
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Chat    ChatProcessor
	Actions ActionLister
	// Hub, when set, lets confirmed chat calls push live status updates to
	// the calling client.
	Hub      streaming.EventHub
	Notifier UserNotifier
	Version  string
	Logger   *slog.Logger
}

// Server wraps an MCP server with the actiondesk tool handlers.
type Server struct {
	chat      ChatProcessor
	actions   ActionLister
	hub       streaming.EventHub
	notifier  UserNotifier
	sessions  *SessionNotifier
	validate  *validator.Validate
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with both tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		chat:     deps.Chat,
		actions:  deps.Actions,
		hub:      deps.Hub,
		validate: validator.New(),
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"actiondesk",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Actiondesk carries out business actions described in plain language: scheduling meetings, sending emails, generating invoices and creating payment links. Call actiondesk.chat once to see what would be done, then again with confirm_execute=true to do it. actiondesk.actions lists what is supported."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.sessions = NewSessionNotifier(mcpSrv)

	s.notifier = deps.Notifier
	if s.notifier == nil {
		s.notifier = s.sessions
	}
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: chatTool(), Handler: s.handleChat},
		{Tool: actionsTool(), Handler: s.handleActions},
	}
}

// --- Tool definitions ---

func chatTool() mcp.Tool {
	return mcp.NewTool("actiondesk.chat",
		mcp.WithDescription("Send a chat message; detected actions run only when confirm_execute is true"),
		mcp.WithString("message", mcp.Required(), mcp.Description("What the user wants, in plain language")),
		mcp.WithString("email", mcp.Required(), mcp.Description("Email address of the user the actions run for")),
		mcp.WithBoolean("confirm_execute", mcp.Description("Execute the detected actions (default: false, only detect)")),
		mcp.WithString("request_id", mcp.Description("Client-chosen request ID used for status updates")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("actiondesk.actions",
		mcp.WithDescription("List the supported action kinds"),
	)
}
