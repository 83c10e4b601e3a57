// Package mcpserver exposes the function registry as MCP (Model Context
// Protocol) tools over stdio JSON-RPC, so MCP clients can call the same
// functions the gateway dispatches.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentgate/internal/core"
	"agentgate/internal/functions"
)

// Server holds the MCP server built from a registry.
type Server struct {
	registry *functions.Registry
	mcp      *server.MCPServer
}

// New creates an MCP server with one tool per registered function.
func New(registry *functions.Registry, version string) *Server {
	s := &Server{
		registry: registry,
		mcp: server.NewMCPServer(
			"agentgate",
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.mcp.AddTools(s.tools()...)
	return s
}

// Serve runs the stdio transport until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	slog.Info("mcp server listening on stdio", "tools", s.registry.Len())
	return stdio.Listen(ctx, in, out)
}

func (s *Server) tools() []server.ServerTool {
	specs := s.registry.List()
	tools := make([]server.ServerTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, server.ServerTool{
			Tool:    toolOf(spec),
			Handler: s.handler(spec.Name),
		})
	}
	return tools
}

func toolOf(spec core.FunctionSpec) mcp.Tool {
	params := spec.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	schema, err := json.Marshal(params)
	if err != nil {
		schema = []byte(`{"type":"object"}`)
	}
	return mcp.NewToolWithRawSchema(spec.Name, spec.Description, schema)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fn, err := s.registry.Get(name)
		if err != nil {
			return mcp.NewToolResultError(toolError(err)), nil
		}

		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		result, err := functions.Invoke(ctx, fn, string(args))
		if err != nil {
			return mcp.NewToolResultError(toolError(err)), nil
		}
		return resultOf(result)
	}
}

// toolError prefers the underlying cause so MCP clients see why the
// function failed rather than the generic envelope message.
func toolError(err error) string {
	if agentErr := core.AsAgentError(err); agentErr != nil {
		if cause, ok := agentErr.Details["error"].(string); ok && cause != "" {
			return fmt.Sprintf("%s: %s", agentErr.Message, cause)
		}
		return agentErr.Message
	}
	return err.Error()
}

func resultOf(v any) (*mcp.CallToolResult, error) {
	if s, ok := v.(string); ok {
		return mcp.NewToolResultText(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
