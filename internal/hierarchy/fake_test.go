package hierarchy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"worklog-report/internal/jira"
)

// fakeJira is an in-memory issue tracker that counts remote calls.
type fakeJira struct {
	issues   map[string]jira.IssueDTO
	children map[string][]string
	failGet  map[string]bool
	failFind map[string]bool

	getCalls    map[string]int
	searchCalls map[string]int
}

func newFakeJira() *fakeJira {
	return &fakeJira{
		issues:      make(map[string]jira.IssueDTO),
		children:    make(map[string][]string),
		failGet:     make(map[string]bool),
		failFind:    make(map[string]bool),
		getCalls:    make(map[string]int),
		searchCalls: make(map[string]int),
	}
}

func (f *fakeJira) add(id, issueType, parent string) {
	fields := jira.Fields{
		"issuetype": json.RawMessage(fmt.Sprintf(`{"name":%q}`, issueType)),
		"summary":   json.RawMessage(fmt.Sprintf(`"Summary of %s"`, id)),
		"status":    json.RawMessage(`{"name":"Open"}`),
	}
	if parent != "" {
		fields["parent"] = json.RawMessage(fmt.Sprintf(`{"id":%q,"key":"P-%s"}`, parent, parent))
		f.children[parent] = append(f.children[parent], id)
	}
	f.issues[id] = jira.IssueDTO{ID: id, Key: "P-" + id, Fields: fields}
}

func (f *fakeJira) GetIssue(ctx context.Context, id string) (*jira.IssueDTO, error) {
	f.getCalls[id]++
	if f.failGet[id] {
		return nil, errors.New("boom")
	}
	dto, ok := f.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, jira.ErrNotFound)
	}
	return &dto, nil
}

func (f *fakeJira) SearchIssues(ctx context.Context, jql string, startAt int, maxResults int) (*jira.SearchResponse, error) {
	var parent string
	if _, err := fmt.Sscanf(jql, "parent = %s", &parent); err != nil {
		return nil, fmt.Errorf("unexpected jql %q", jql)
	}
	f.searchCalls[parent]++
	if f.failFind[parent] {
		return nil, errors.New("search unavailable")
	}

	ids := f.children[parent]
	resp := &jira.SearchResponse{StartAt: startAt, MaxResults: maxResults, Total: len(ids)}
	for i := startAt; i < len(ids) && i < startAt+maxResults; i++ {
		resp.Issues = append(resp.Issues, f.issues[ids[i]])
	}
	return resp, nil
}

func (f *fakeJira) FindUserByEmail(ctx context.Context, email string) (*jira.User, error) {
	return nil, jira.ErrUserNotFound
}

func (f *fakeJira) totalGets() int {
	n := 0
	for _, c := range f.getCalls {
		n += c
	}
	return n
}

func newTestResolver(f *fakeJira) *Resolver {
	return NewResolver(f, jira.DefaultFieldMap(), NewCaches(), Options{PageSize: 2, MaxPages: 10})
}
