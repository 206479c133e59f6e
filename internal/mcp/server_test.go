package mcp

import (
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"worklog-report/cmd/mockgen/engine"
	"worklog-report/internal/config"
	"worklog-report/internal/jira"
	"worklog-report/internal/report"
	"worklog-report/internal/tempo"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func dataset() *engine.Dataset {
	wl := func(id, issue int64, author, date string, seconds int64) tempo.WorklogDTO {
		return tempo.WorklogDTO{TempoWorklogID: id, Issue: tempo.IDRef{ID: issue}, TimeSpentSeconds: seconds, StartDate: date, Author: tempo.Author{AccountID: author}}
	}
	return &engine.Dataset{
		Users: []jira.User{
			{AccountID: "acc-1", DisplayName: "Ann", Email: "ann@example.com"},
			{AccountID: "acc-2", DisplayName: "Bob", Email: "bob@example.com"},
		},
		Issues: []engine.Issue{
			{ID: "1", Key: "M-1", Type: "Story", Summary: "Login", Status: "Done", StoryPoints: 2.0},
			{ID: "2", Key: "M-2", Type: "Sub-task", Summary: "Form", ParentID: "1"},
			{ID: "3", Key: "M-3", Type: "Bug", Summary: "Crash"},
		},
		Worklogs: []tempo.WorklogDTO{
			wl(1, 2, "acc-1", "2024-03-04", 8*3600),
			wl(2, 3, "acc-1", "2024-03-05", 3600),
			wl(3, 3, "acc-2", "2024-03-05", 3600),
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ts := httptest.NewServer(engine.NewServer(dataset(), jira.DefaultFieldMap()))
	t.Cleanup(ts.Close)

	from, _ := config.ParseDate("2024-03-01")
	to, _ := config.ParseDate("2024-03-31")
	cfg := &config.AppConfig{
		Jira:      jira.Config{BaseURL: ts.URL, Token: "t"},
		Tempo:     tempo.Config{BaseURL: ts.URL + engine.TempoPrefix, Token: "t"},
		OutputDir: filepath.Join(t.TempDir(), "reports"),
		Report: config.ReportConfig{
			Users:      []string{"ann@example.com"},
			IssueTypes: []string{"Story", "Bug"},
			From:       from,
			To:         to,
			Limit:      50,
			MaxPages:   10,
			Workers:    2,
			Formats:    []string{"csv"},
		},
	}
	runner := report.NewRunner(jira.NewClient(cfg.Jira), tempo.NewClient(cfg.Tempo), jira.DefaultFieldMap())
	return NewServer(cfg, runner, "test")
}

func TestHandleUtilizationReport_Defaults(t *testing.T) {
	s := newTestServer(t)

	res, out, err := s.handleUtilizationReport(t.Context(), nil, UtilizationInput{WriteFiles: true})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	// The shared bug is skipped; only the story (via its sub-task) remains.
	if len(out.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", out.Records)
	}
	rec := out.Records[0]
	if rec["issue_key"] != "M-1" || rec["time_spent_hours"] != "8" || rec["days"] != "1" || rec["velocity"] != "2" {
		t.Errorf("unexpected record %v", rec)
	}
	if len(out.Users) != 1 || out.Users[0].Name != "Ann" {
		t.Errorf("unexpected totals %+v", out.Users)
	}
	if len(out.Files) != 2 {
		t.Errorf("expected a per-user and a combined csv, got %v", out.Files)
	}
	for _, f := range out.Files {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("missing report file: %v", err)
		}
	}
	if res == nil || len(res.Content) != 1 {
		t.Errorf("expected the markdown summary as content, got %+v", res)
	}
}

func TestHandleUtilizationReport_Overrides(t *testing.T) {
	s := newTestServer(t)
	include := true

	_, out, err := s.handleUtilizationReport(t.Context(), nil, UtilizationInput{
		Emails:           []string{"ann@example.com", "bob@example.com"},
		IssueTypes:       []string{"Bug"},
		IncludeMultiUser: &include,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(out.Records) != 1 || out.Records[0]["user_name"] != report.MultipleUsersLabel {
		t.Errorf("expected one shared bug row, got %v", out.Records)
	}
	if out.Files != nil {
		t.Errorf("no files expected, got %v", out.Files)
	}
}

func TestHandleUtilizationReport_InvalidInput(t *testing.T) {
	s := newTestServer(t)

	if _, _, err := s.handleUtilizationReport(t.Context(), nil, UtilizationInput{From: "03/01/2024"}); err == nil {
		t.Error("expected an error for a malformed date")
	}
	if _, _, err := s.handleUtilizationReport(t.Context(), nil, UtilizationInput{From: "2024-04-01", To: "2024-03-01"}); err == nil {
		t.Error("expected an error for an inverted range")
	}
}

func TestClassifyIssues_OverTransport(t *testing.T) {
	s := newTestServer(t)
	ctx := t.Context()

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	if _, err := s.server.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      "classify_issues",
		Arguments: map[string]any{"issue_ids": []string{"2", "3"}, "issue_types": []string{"story"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool reported an error: %+v", res.Content)
	}

	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	var out ClassifyOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding structured content: %v", err)
	}
	if len(out.Qualified) != 1 || out.Qualified[0].ID != "1" || out.Qualified[0].Source != "2" {
		t.Errorf("unexpected classification %+v", out.Qualified)
	}
}

func TestHandleClassifyIssues_RequiresIDs(t *testing.T) {
	s := newTestServer(t)
	if _, _, err := s.handleClassifyIssues(t.Context(), nil, ClassifyInput{}); err == nil {
		t.Error("expected an error without issue ids")
	}
}
