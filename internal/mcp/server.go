package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"km24vejviser/internal/logger"
)

// NewServer installs every tool of r on a fresh MCP server.
func NewServer(r *Registry, version string) *sdkmcp.Server {
	if version == "" {
		version = "dev"
	}
	srv := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "km24-vejviser", Version: version}, nil)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		t.install(srv)
	}
	return srv
}

// ServeStdio serves r over stdin/stdout until ctx ends or the client
// disconnects.
func ServeStdio(ctx context.Context, r *Registry, log *logger.Logger) error {
	srv := NewServer(r, "")
	log.Info("serving MCP over stdio", "tools", len(r.Specs()))
	return srv.Run(ctx, &sdkmcp.StdioTransport{})
}
