// Package mcpserver serves the gateway's tools over the Model Context
// Protocol on stdin/stdout.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/gateway"
	"github.com/compresr-ai/semantic-gateway/internal/tools"
)

// New builds the MCP server and registers every tool from the registry
// with its declared JSON schema.
func New(registry *tools.Registry, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		config.ServiceName,
		config.ServiceVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, t := range registry.List() {
		tool := mcp.NewToolWithRawSchema(t.Name, t.Description, t.Schema)
		s.AddTool(tool, toolHandler(registry, t.Name, logger))
	}

	return s
}

// ServeStdio blocks, serving the protocol until stdin closes.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// toolHandler adapts registry dispatch to the MCP handler contract:
// validation failures and unknown tools become protocol errors, upstream
// failures become error-flagged content blocks.
func toolHandler(registry *tools.Registry, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, opErr := registry.DispatchArgs(ctx, name, req.GetArguments())
		if opErr != nil {
			logger.Error("tool call failed",
				"tool", name, "class", opErr.Class, "error", opErr.Message)
			switch opErr.Class {
			case gateway.ClassValidation, gateway.ClassNotFound:
				return nil, fmt.Errorf("%s", opErr.Message)
			default:
				return mcp.NewToolResultError(opErr.Message), nil
			}
		}
		return mcp.NewToolResultText(out), nil
	}
}
