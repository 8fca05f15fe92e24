// Package mcp exposes run, validate and schema as Model Context Protocol
// tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the arcanine tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	if h == nil {
		h = &Handlers{}
	}
	s := server.NewMCPServer(
		"arcanine",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("arcanine/run",
			mcp.WithDescription("Run one request of a collection through the full script pipeline and return the result"),
			mcp.WithString("collection", mcp.Required(), mcp.Description("Path to the collection YAML file")),
			mcp.WithString("request", mcp.Required(), mcp.Description("Request path inside the collection, e.g. users/list")),
			mcp.WithString("env", mcp.Description("Path to an environment YAML file (optional)")),
			mcp.WithString("globals", mcp.Description("Path to a globals YAML file (optional)")),
			mcp.WithObject("vars", mcp.Description("Runtime variable overrides (optional)")),
		),
		h.HandleRun,
	)

	s.AddTool(
		mcp.NewTool("arcanine/validate",
			mcp.WithDescription("Validate a collection, environment or globals YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the YAML file")),
			mcp.WithString("kind", mcp.Description("collection, environment or globals; detected from the file name when omitted")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("arcanine/schema",
			mcp.WithDescription("Export the JSON Schema of a document kind"),
			mcp.WithString("kind", mcp.Required(), mcp.Description("collection, environment or globals")),
		),
		HandleSchema,
	)

	return s
}
