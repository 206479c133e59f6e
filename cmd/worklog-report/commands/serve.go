package commands

import (
	"worklog-report/internal/mcp"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve report runs as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			// Tool calls may still supply users and types.
			log.Warn().Err(err).Msg("Configured report defaults are incomplete")
		}
		return mcp.NewServer(cfg, runner, Version).Start(cmd.Context())
	},
}
