package mcp

import (
	"log/slog"

	"github.com/emgroup/sitesync/internal/auth"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Config contains server configuration.
type Config struct {
	Sessions  *Sessions
	Directory *auth.Directory
	// DefaultProject is used when a tool call names no project.
	DefaultProject string
	// DefaultEmail signs in calls that carry no email. Stdio servers set it to
	// the operator's address.
	DefaultEmail string
	Version      string
	Logger       *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "sitesync",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Middleware runs last-added first, so identity is resolved before logging.
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddReceivingMiddleware(identityMiddleware(cfg.Directory, cfg.DefaultEmail))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, &toolHandlers{
		sessions:       cfg.Sessions,
		defaultProject: cfg.DefaultProject,
	})
	return server
}
