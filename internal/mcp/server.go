package mcp

import (
	"context"

	"worklog-report/internal/config"
	"worklog-report/internal/report"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Server exposes report runs as MCP tools.
type Server struct {
	cfg    *config.AppConfig
	runner *report.Runner
	server *sdk.Server
}

// NewServer creates a new MCP server and registers its tools.
func NewServer(cfg *config.AppConfig, runner *report.Runner, version string) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		server: sdk.NewServer(&sdk.Implementation{Name: "worklog-report", Version: version}, nil),
	}
	s.registerTools()
	return s
}

// Start serves MCP over stdio until the client disconnects or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	log.Info().Msg("MCP server listening on stdio")
	return s.server.Run(ctx, &sdk.StdioTransport{})
}
