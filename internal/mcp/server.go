package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/defectctl/internal/application"
)

// Server wraps the application service with MCP protocol handling.
type Server struct {
	svc    Service
	loader application.ConfigLoader
	config Config
	server *mcp.Server
}

// New creates a new MCP server wrapping the given service. The loader
// backs the config resource.
func New(svc Service, loader application.ConfigLoader, cfg Config, version string) *Server {
	defaults := DefaultConfig()
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = defaults.ConfigPath
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	s := &Server{
		svc:    svc,
		loader: loader,
		config: cfg,
	}
	s.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    "defectctl",
			Version: version,
		},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools:     &mcp.ToolCapabilities{},
				Resources: &mcp.ResourceCapabilities{},
			},
		},
	)
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves over stdio and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bounce",
		Description: "Compute defect bounce metrics for one or more pillars over a date range. A bounce is a status change back to an earlier workflow bucket than the furthest one the defect reached.",
	}, s.handleBounce)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_pillars",
		Description: "List the configured pillars with their projects and bucket order, including pillars rejected by validation.",
	}, s.handleListPillars)
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         "defectctl://config",
		Name:        "Pillar Configuration",
		Description: "Validated pillar definitions and the reasons any pillar was rejected",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.server.AddResource(&mcp.Resource{
		URI:         "defectctl://trend",
		Name:        "Bounce Rate Trend",
		Description: "Bounce-rate trend per pillar from recorded history",
		MIMEType:    "application/json",
	}, s.handleTrendResource)
}
