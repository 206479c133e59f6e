package engine

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"

	"github.com/google/go-cmp/cmp"
)

func testConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:             7,
		Users:            3,
		Epics:            2,
		StoriesPerEpic:   3,
		SubtasksPerStory: 2,
		From:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:               time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(testConfig())
	b := Generate(testConfig())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different datasets (-a +b):\n%s", diff)
	}

	// 2 epics + 6 stories + 12 sub-tasks
	if len(a.Issues) != 20 {
		t.Errorf("expected 20 issues, got %d", len(a.Issues))
	}
	if len(a.Worklogs) == 0 {
		t.Error("expected worklogs")
	}
	for _, is := range a.Issues {
		if is.ParentID == "" {
			continue
		}
		if _, ok := a.Issue(is.ParentID); !ok {
			t.Errorf("issue %s has dangling parent %s", is.Key, is.ParentID)
		}
	}
}

func TestSaveLoad(t *testing.T) {
	ds := Generate(testConfig())
	path, err := Save(t.TempDir(), ds)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != DatasetFile {
		t.Errorf("unexpected file name %s", path)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Issues) != len(ds.Issues) || len(got.Worklogs) != len(ds.Worklogs) {
		t.Errorf("round trip lost data: %d/%d issues, %d/%d worklogs",
			len(got.Issues), len(ds.Issues), len(got.Worklogs), len(ds.Worklogs))
	}
}

func smallDataset() *Dataset {
	return &Dataset{
		Users: []jira.User{{AccountID: "acc-1", DisplayName: "Ann", Email: "ann@example.com"}},
		Issues: []Issue{
			{ID: "1", Key: "M-1", Type: "Epic", Summary: "epic", Status: "Done"},
			{ID: "2", Key: "M-2", Type: "Story", Summary: "story", ParentID: "1", StoryPoints: 5.0, Components: []string{"Backend"}},
			{ID: "3", Key: "M-3", Type: "Story", Summary: "story", ParentID: "1"},
		},
		Worklogs: []tempo.WorklogDTO{
			{TempoWorklogID: 1, Issue: tempo.IDRef{ID: 2}, TimeSpentSeconds: 3600, StartDate: "2024-03-01", Author: tempo.Author{AccountID: "acc-1"}},
			{TempoWorklogID: 2, Issue: tempo.IDRef{ID: 2}, TimeSpentSeconds: 3600, StartDate: "2024-03-02", Author: tempo.Author{AccountID: "acc-1"}},
			{TempoWorklogID: 3, Issue: tempo.IDRef{ID: 3}, TimeSpentSeconds: 3600, StartDate: "2024-04-02", Author: tempo.Author{AccountID: "acc-1"}},
		},
	}
}

func TestServer_ServesClients(t *testing.T) {
	srv := NewServer(smallDataset(), jira.DefaultFieldMap())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	jc := jira.NewClient(jira.Config{BaseURL: ts.URL, Token: "t"})
	tc := tempo.NewClient(tempo.Config{BaseURL: ts.URL + TempoPrefix, Token: "t"})
	ctx := t.Context()

	issue, err := jc.GetIssue(ctx, "2")
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	detail := jira.MapIssue(*issue, jira.DefaultFieldMap())
	if detail.Type != "Story" || detail.ParentID != "1" || !detail.StoryPoints.Valid || detail.StoryPoints.Value != 5 {
		t.Errorf("unexpected detail %+v", detail)
	}
	if diff := cmp.Diff([]string{"Backend"}, detail.Components); diff != "" {
		t.Errorf("components (-want +got):\n%s", diff)
	}

	res, err := jc.SearchIssues(ctx, `parent = 1 OR "Parent Link" = 1`, 0, 1)
	if err != nil {
		t.Fatalf("SearchIssues: %v", err)
	}
	if res.Total != 2 || len(res.Issues) != 1 || res.Issues[0].ID != "2" {
		t.Errorf("unexpected search page %+v", res)
	}

	u, err := jc.FindUserByEmail(ctx, "ann@example.com")
	if err != nil || u.AccountID != "acc-1" {
		t.Fatalf("FindUserByEmail = %+v, %v", u, err)
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	page, err := tc.UserWorklogs(ctx, "acc-1", from, to, 0, 1)
	if err != nil {
		t.Fatalf("UserWorklogs: %v", err)
	}
	if len(page.Results) != 1 || !page.HasNext() {
		t.Errorf("expected a first page with a next link, got %+v", page.Metadata)
	}
	page, err = tc.UserWorklogs(ctx, "acc-1", from, to, 1, 1)
	if err != nil {
		t.Fatalf("UserWorklogs: %v", err)
	}
	if len(page.Results) != 1 || page.HasNext() {
		t.Errorf("expected a last page, got %+v", page.Metadata)
	}

	page, err = tc.IssueWorklogs(ctx, "3", 0, 50)
	if err != nil || len(page.Results) != 1 {
		t.Errorf("IssueWorklogs(3) = %+v, %v", page, err)
	}
}

func TestServer_FailIssueAndNotFound(t *testing.T) {
	srv := NewServer(smallDataset(), jira.DefaultFieldMap())
	srv.FailIssue("3")
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/rest/api/3/issue/3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failing issue answered %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/rest/api/3/issue/99")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing issue answered %d", resp.StatusCode)
	}

	if got := srv.Requests("issue/3"); got != 1 {
		t.Errorf("expected 1 request for issue/3, got %d", got)
	}
}

func TestServer_UnknownRoutes(t *testing.T) {
	srv := NewServer(smallDataset(), jira.DefaultFieldMap())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/rest/api/3/project/1"},
		{http.MethodGet, TempoPrefix + "/accounts"},
		{http.MethodPost, "/rest/api/3/issue/1"},
	} {
		req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s answered %d, want 404", tc.method, tc.path, resp.StatusCode)
		}
	}
	if got := srv.Requests("issue/1"); got != 0 {
		t.Errorf("unrouted request reached a handler %d times", got)
	}
}

func TestServer_StoryPointsText(t *testing.T) {
	ds := smallDataset()
	ds.Issues[2].StoryPoints = "TBD"
	srv := NewServer(ds, jira.DefaultFieldMap())

	dto := srv.toDTO(ds.Issues[2])
	var sp string
	if err := json.Unmarshal(dto.Fields[jira.DefaultFieldMap().StoryPoints], &sp); err != nil || sp != "TBD" {
		t.Errorf("story points field = %s", dto.Fields[jira.DefaultFieldMap().StoryPoints])
	}
}
