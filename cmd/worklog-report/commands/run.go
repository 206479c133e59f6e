package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"worklog-report/internal/config"
	"worklog-report/internal/report"

	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runFlags struct {
	users      string
	types      string
	from       string
	to         string
	multiUser  bool
	workers    int
	outputDir  string
	formats    string
	openReport bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Produce the utilization report",
	Long: `Fetch the worklogs of the configured users for the date range, classify the
touched issues and write one file per user plus a combined file.

Flags override the corresponding environment settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		res, err := runner.Run(cmd.Context(), report.ParamsFrom(cfg.Report))
		if err != nil {
			return err
		}

		files, err := report.Write(res, cfg.OutputDir, cfg.Report.Formats)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}

		if runFlags.openReport {
			for _, f := range files {
				if strings.HasSuffix(f, ".md") {
					if err := browser.OpenFile(f); err != nil {
						log.Warn().Err(err).Str("file", f).Msg("Could not open summary")
					}
				}
			}
		}
		return nil
	},
}

func applyRunFlags(cmd *cobra.Command, c *config.AppConfig) error {
	flags := cmd.Flags()
	if flags.Changed("users") {
		c.Report.Users = config.SplitList(runFlags.users)
	}
	if flags.Changed("types") {
		c.Report.IssueTypes = config.SplitList(runFlags.types)
	}
	if flags.Changed("from") {
		d, err := config.ParseDate(runFlags.from)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		c.Report.From = d
	}
	if flags.Changed("to") {
		d, err := config.ParseDate(runFlags.to)
		if err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
		c.Report.To = d
	}
	if flags.Changed("include-multi-user") {
		c.Report.IncludeMultiUser = runFlags.multiUser
	}
	if flags.Changed("workers") {
		c.Report.Workers = runFlags.workers
	}
	if flags.Changed("formats") {
		c.Report.Formats = config.SplitList(runFlags.formats)
	}
	if flags.Changed("out") {
		abs, err := filepath.Abs(runFlags.outputDir)
		if err != nil {
			return err
		}
		c.OutputDir = abs
	}
	return nil
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.users, "users", "", "comma separated user emails (REPORT_USERS)")
	f.StringVar(&runFlags.types, "types", "", "comma separated issue types (REPORT_ISSUE_TYPES)")
	f.StringVar(&runFlags.from, "from", "", "first day, YYYY-MM-DD (REPORT_FROM)")
	f.StringVar(&runFlags.to, "to", "", "last day, YYYY-MM-DD (REPORT_TO)")
	f.BoolVar(&runFlags.multiUser, "include-multi-user", false, "report shared issues as MULTIPLE_USERS (INCLUDE_MULTI_USER)")
	f.IntVar(&runFlags.workers, "workers", 1, "issues aggregated concurrently per user (WORKERS)")
	f.StringVar(&runFlags.outputDir, "out", "", "output directory (OUTPUT_DIR)")
	f.StringVar(&runFlags.formats, "formats", "", "csv, jsonl and/or md (OUTPUT_FORMATS)")
	f.BoolVar(&runFlags.openReport, "open", false, "open the Markdown summary when done")
}
