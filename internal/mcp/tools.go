package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"worklog-report/internal/cache"
	"worklog-report/internal/config"
	"worklog-report/internal/hierarchy"
	"worklog-report/internal/report"
	"worklog-report/internal/tempo"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// UtilizationInput are the arguments of utilization_report. Omitted fields fall
// back to the configured defaults.
type UtilizationInput struct {
	Emails           []string `json:"emails,omitempty" jsonschema:"user email addresses, processed in this order"`
	IssueTypes       []string `json:"issue_types,omitempty" jsonschema:"issue types to report on, e.g. Story or Bug"`
	From             string   `json:"from,omitempty" jsonschema:"first day of the range (YYYY-MM-DD)"`
	To               string   `json:"to,omitempty" jsonschema:"last day of the range (YYYY-MM-DD)"`
	IncludeMultiUser *bool    `json:"include_multi_user,omitempty" jsonschema:"report issues other users also logged on as MULTIPLE_USERS"`
	WriteFiles       bool     `json:"write_files,omitempty" jsonschema:"also write the report files to the output directory"`
}

// UtilizationOutput is the structured result of utilization_report.
type UtilizationOutput struct {
	RunID      string              `json:"run_id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Users      []report.UserTotals `json:"users"`
	Records    []map[string]string `json:"records"`
	CacheStats []cache.Stats       `json:"cache_stats"`
	Files      []string            `json:"files,omitempty"`
}

// ClassifyInput are the arguments of classify_issues.
type ClassifyInput struct {
	IssueIDs   []string `json:"issue_ids" jsonschema:"ids of the touched issues"`
	IssueTypes []string `json:"issue_types,omitempty" jsonschema:"issue types that qualify"`
}

// ClassifyOutput lists the qualifying issues and the rule that selected each.
type ClassifyOutput struct {
	Qualified []hierarchy.Qualified `json:"qualified"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name: "utilization_report",
		Description: "Reconcile logged time against the issue hierarchy for a set of users and a date range. " +
			"Returns one record per qualifying issue with hours, days, velocity and parent context. " +
			"Issues with other authors are skipped unless include_multi_user is set.",
	}, s.handleUtilizationReport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name: "classify_issues",
		Description: "Decide which issues qualify for reporting: an issue of a wanted type, else its parent of a wanted type, " +
			"else its children of a wanted type.",
	}, s.handleClassifyIssues)
}

func (s *Server) handleUtilizationReport(ctx context.Context, _ *sdk.CallToolRequest, in UtilizationInput) (*sdk.CallToolResult, UtilizationOutput, error) {
	rc, err := s.reportConfig(in)
	if err != nil {
		return nil, UtilizationOutput{}, err
	}

	res, err := s.runner.Run(ctx, report.ParamsFrom(rc))
	if err != nil {
		return nil, UtilizationOutput{}, err
	}

	out := UtilizationOutput{
		RunID:      res.RunID,
		From:       rc.From.Format(tempo.DateLayout),
		To:         rc.To.Format(tempo.DateLayout),
		Users:      report.Totals(res),
		Records:    []map[string]string{},
		CacheStats: res.CacheStats,
	}
	for _, rec := range res.Combined() {
		row := report.Row(rec)
		m := make(map[string]string, len(row))
		for i, col := range report.Header {
			m[col] = row[i]
		}
		out.Records = append(out.Records, m)
	}

	if in.WriteFiles {
		files, err := report.Write(res, s.cfg.OutputDir, rc.Formats)
		if err != nil {
			return nil, UtilizationOutput{}, err
		}
		out.Files = files
	}

	log.Info().Str("run_id", res.RunID).Int("records", len(out.Records)).Msg("utilization_report served")
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: report.Summary(res)}},
	}, out, nil
}

func (s *Server) handleClassifyIssues(ctx context.Context, _ *sdk.CallToolRequest, in ClassifyInput) (*sdk.CallToolResult, ClassifyOutput, error) {
	if len(in.IssueIDs) == 0 {
		return nil, ClassifyOutput{}, errors.New("issue_ids must not be empty")
	}
	types := in.IssueTypes
	if len(types) == 0 {
		types = s.cfg.Report.IssueTypes
	}
	if len(types) == 0 {
		return nil, ClassifyOutput{}, errors.New("issue_types must not be empty")
	}

	qs := s.runner.Classify(ctx, in.IssueIDs, types)
	if qs == nil {
		qs = []hierarchy.Qualified{}
	}
	return nil, ClassifyOutput{Qualified: qs}, nil
}

// reportConfig overlays tool arguments on the configured defaults.
func (s *Server) reportConfig(in UtilizationInput) (config.ReportConfig, error) {
	rc := s.cfg.Report
	if len(in.Emails) > 0 {
		rc.Users = in.Emails
	}
	if len(in.IssueTypes) > 0 {
		rc.IssueTypes = in.IssueTypes
	}
	if in.From != "" {
		d, err := config.ParseDate(in.From)
		if err != nil {
			return rc, fmt.Errorf("invalid from date %q: %w", in.From, err)
		}
		rc.From = d
	}
	if in.To != "" {
		d, err := config.ParseDate(in.To)
		if err != nil {
			return rc, fmt.Errorf("invalid to date %q: %w", in.To, err)
		}
		rc.To = d
	}
	if in.IncludeMultiUser != nil {
		rc.IncludeMultiUser = *in.IncludeMultiUser
	}
	if err := rc.Validate(); err != nil {
		return rc, fmt.Errorf("invalid report parameters: %s", strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	return rc, nil
}
