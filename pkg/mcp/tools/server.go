package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig contains configuration for creating an MCP server.
type ServerConfig struct {
	// Name is the server name reported to clients.
	Name string

	// Version is the server version reported to clients.
	Version string

	// Instructions are sent to clients during initialization.
	Instructions string
}

const defaultInstructions = `Tools for reading the activity feed of a control plane.
Use get_activity_facets to discover valid filter values before calling query_activities.
Times accept relative expressions such as now-24h or RFC3339 timestamps.`

// NewMCPServer creates an MCP server with all activity tools registered.
func (p *ToolProvider) NewMCPServer(cfg ServerConfig) *mcp.Server {
	if cfg.Name == "" {
		cfg.Name = "activity"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Instructions == "" {
		cfg.Instructions = defaultInstructions
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		&mcp.ServerOptions{Instructions: cfg.Instructions},
	)

	p.RegisterTools(server)

	return server
}
