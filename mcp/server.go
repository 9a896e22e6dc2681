// Package mcp exposes paid Actions as MCP tools, so agent runtimes can
// call pay-per-use APIs through the Model Context Protocol. Each
// registered Action becomes a tool whose handler drives the paid run
// flow; the payment hand-off goes through the server's configured
// payment handler.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/runner"
)

// Config configures an MCP bridge server.
type Config struct {
	// BaseURL overrides the platform endpoint for every tool call.
	BaseURL string

	// PaymentHandler receives the hand-off whenever a tool call needs a
	// payment. Required: an agent host usually wires this to an
	// elicitation prompt or an automatic payer.
	PaymentHandler runner.PaymentHandler

	// HTTPClient overrides the HTTP client used for tool calls.
	HTTPClient *http.Client

	// RunnerOptions are applied to every runner after the options
	// derived from this config, so they take precedence.
	RunnerOptions []runner.Option

	// Logger receives tool call logs. slog.Default when nil.
	Logger *slog.Logger
}

// Server wraps an MCP server and registers paid Actions as tools.
type Server struct {
	mcpServer *mcpserver.MCPServer
	config    Config
	logger    *slog.Logger
}

// NewServer creates an MCP bridge server. The name and version identify
// the server to MCP clients during initialization.
func NewServer(name, version string, config Config) (*Server, error) {
	if config.PaymentHandler == nil {
		return nil, pay2run.ErrMissingPaymentHandler
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		mcpServer: mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(true)),
		config:    config,
		logger:    logger,
	}, nil
}

// AddAction registers an Action as a tool named toolName. The tool's
// arguments are forwarded verbatim as the execute request body.
func (s *Server) AddAction(toolName string, action pay2run.ActionConfig) error {
	if toolName == "" {
		return fmt.Errorf("pay2run/mcp: tool name is required")
	}
	if action.ID == "" {
		return pay2run.ErrMissingActionID
	}

	description := action.Description
	if description == "" {
		description = action.Name
	}
	if action.Payment.Price != "" {
		description = fmt.Sprintf("%s (paid: %s %s per call)", description, action.Payment.Price, action.Payment.Currency)
	}

	tool := mcpproto.NewTool(toolName, mcpproto.WithDescription(description))
	s.mcpServer.AddTool(tool, s.toolHandler(toolName, action))
	return nil
}

func (s *Server) toolHandler(toolName string, action pay2run.ActionConfig) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
		opts := make([]runner.Option, 0, len(s.config.RunnerOptions)+2)
		if s.config.BaseURL != "" {
			opts = append(opts, runner.WithBaseURL(s.config.BaseURL))
		}
		if s.config.HTTPClient != nil {
			opts = append(opts, runner.WithHTTPClient(s.config.HTTPClient))
		}
		opts = append(opts, s.config.RunnerOptions...)

		r, err := runner.New(action.ID, s.config.PaymentHandler, opts...)
		if err != nil {
			return nil, err
		}

		runOpts := pay2run.RunOptions{}
		if args := request.GetArguments(); len(args) > 0 {
			runOpts.Body = args
		}

		s.logger.Info("tool call started", "tool", toolName, "action", action.ID)
		data, err := r.Run(ctx, runOpts)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", toolName, "action", action.ID, "error", err)
			return mcpproto.NewToolResultError(fmt.Sprintf("run failed for action %s: %v", action.ID, err)), nil
		}

		s.logger.Info("tool call succeeded", "tool", toolName, "action", action.ID)
		return mcpproto.NewToolResultText(string(data)), nil
	}
}

// Handler returns a streamable HTTP handler serving the MCP protocol.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// Start serves the MCP protocol over HTTP on addr.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}

// ServeStdio serves the MCP protocol over stdin and stdout, the
// transport most agent hosts spawn tools with.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying MCP server for advanced usage, such
// as registering extra tools or resources.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
