package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"worklog-report/internal/config"
	"worklog-report/internal/jira"
	"worklog-report/internal/logging"
	"worklog-report/internal/report"
	"worklog-report/internal/tempo"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	runner *report.Runner
)

var rootCmd = &cobra.Command{
	Use:   "worklog-report",
	Short: "Reconcile logged time against the Jira issue hierarchy",
	Long: `worklog-report pulls the worklogs of a set of users from Tempo, decides which
Jira issues qualify through their own type, their parent or their children, and
reports hours, days and velocity per qualifying issue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		if dir, err := logging.Init(verbose); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("File logging disabled")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		runner = report.NewRunner(jira.NewClient(cfg.Jira), tempo.NewClient(cfg.Tempo), cfg.Jira.Fields)

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("worklog-report starting")
		return nil
	},
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(runCmd, serveCmd, versionCmd)
}
