package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const storyPayload = `{
	"id": "10001",
	"key": "PROJ-1",
	"fields": {
		"issuetype": {"name": "Story", "subtask": false},
		"summary": "Checkout flow",
		"parent": {"id": "10000", "key": "PROJ-0"},
		"status": {"name": "In Progress"},
		"components": [{"name": "web"}, {"name": "api"}],
		"customfield_10016": 3,
		"customfield_10030": {"value": "High"}
	}
}`

func TestMapIssue(t *testing.T) {
	var dto IssueDTO
	if err := json.Unmarshal([]byte(storyPayload), &dto); err != nil {
		t.Fatal(err)
	}

	got := MapIssue(dto, DefaultFieldMap())
	want := IssueDetail{
		ID:            "10001",
		Key:           "PROJ-1",
		Type:          "Story",
		Summary:       "Checkout flow",
		ParentID:      "10000",
		StoryPoints:   StoryPoints{Value: 3, Valid: true},
		BusinessValue: "High",
		Status:        "In Progress",
		Components:    []string{"web", "api"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MapIssue mismatch (-want +got):\n%s", diff)
	}
}

func TestMapIssue_CustomFieldIDs(t *testing.T) {
	dto := IssueDTO{
		ID:  "7",
		Key: "OPS-7",
		Fields: Fields{
			"issuetype":         json.RawMessage(`{"name":"Bug"}`),
			"summary":           json.RawMessage(`"Pager storm"`),
			"customfield_20000": json.RawMessage(`"5.5"`),
			"customfield_20001": json.RawMessage(`null`),
			"workflowstate":     json.RawMessage(`{"name":"Triage"}`),
		},
	}
	fields := FieldMap{
		StoryPoints:   "customfield_20000",
		BusinessValue: "customfield_20001",
		Status:        "workflowstate",
		Components:    "components",
	}

	got := MapIssue(dto, fields)
	if !got.StoryPoints.Valid || got.StoryPoints.Value != 5.5 {
		t.Errorf("StoryPoints = %+v, want 5.5", got.StoryPoints)
	}
	if got.BusinessValue != "" {
		t.Errorf("BusinessValue = %q, want empty for null field", got.BusinessValue)
	}
	if got.Status != "Triage" {
		t.Errorf("Status = %q, want Triage", got.Status)
	}
	if got.HasParent() {
		t.Errorf("expected no parent, got %q", got.ParentID)
	}
	if got.Components != nil {
		t.Errorf("Components = %v, want nil", got.Components)
	}
}

func TestFields_Number(t *testing.T) {
	f := Fields{
		"num":   json.RawMessage(`8`),
		"str":   json.RawMessage(`"13"`),
		"text":  json.RawMessage(`"XL"`),
		"null":  json.RawMessage(`null`),
		"float": json.RawMessage(`0.5`),
	}

	tests := []struct {
		id      string
		want    float64
		wantOK  bool
		wantRaw string
	}{
		{"num", 8, true, ""},
		{"str", 13, true, ""},
		{"text", 0, false, "XL"},
		{"null", 0, false, ""},
		{"missing", 0, false, ""},
		{"float", 0.5, true, ""},
	}

	for _, tt := range tests {
		got, ok, raw := f.Number(tt.id)
		if got != tt.want || ok != tt.wantOK || raw != tt.wantRaw {
			t.Errorf("Number(%q) = %v, %v, %q; want %v, %v, %q", tt.id, got, ok, raw, tt.want, tt.wantOK, tt.wantRaw)
		}
	}
}

func TestFields_Text(t *testing.T) {
	f := Fields{
		"option":  json.RawMessage(`{"self":"x","value":"Must have","id":"1"}`),
		"multi":   json.RawMessage(`[{"value":"A"},{"value":"B"}]`),
		"plain":   json.RawMessage(`"hello"`),
		"number":  json.RawMessage(`42`),
		"bool":    json.RawMessage(`true`),
		"empty":   json.RawMessage(`{}`),
		"nothing": json.RawMessage(`null`),
	}

	tests := []struct {
		id     string
		want   string
		wantOK bool
	}{
		{"option", "Must have", true},
		{"multi", "A, B", true},
		{"plain", "hello", true},
		{"number", "42", true},
		{"bool", "true", true},
		{"empty", "", false},
		{"nothing", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := f.Text(tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Text(%q) = %q, %v; want %q, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestStoryPoints_String(t *testing.T) {
	tests := []struct {
		p    StoryPoints
		want string
	}{
		{StoryPoints{Value: 3, Valid: true}, "3"},
		{StoryPoints{Value: 0.5, Valid: true}, "0.5"},
		{StoryPoints{Raw: "XL"}, "XL"},
		{StoryPoints{}, "None"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestFieldMap_RequestFields(t *testing.T) {
	m := FieldMap{StoryPoints: "customfield_1", Status: "status", Components: "components", BusinessValue: "customfield_1"}
	want := "issuetype,summary,parent,status,components,customfield_1"
	if got := m.RequestFields(); got != want {
		t.Errorf("RequestFields() = %q, want %q", got, want)
	}
}

func TestFieldMap_Merge(t *testing.T) {
	got := FieldMap{StoryPoints: "customfield_99"}.Merge(DefaultFieldMap())
	if got.StoryPoints != "customfield_99" {
		t.Errorf("StoryPoints = %q, want override kept", got.StoryPoints)
	}
	if got.Status != "status" || got.ParentLink != `"Parent Link"` {
		t.Errorf("expected defaults to fill gaps, got %+v", got)
	}
}

func TestRESTClient_GetIssue(t *testing.T) {
	var gotAuth, gotFields string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFields = r.URL.Query().Get("fields")
		switch r.URL.Path {
		case "/rest/api/3/issue/10001":
			_, _ = w.Write([]byte(storyPayload))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewRESTClient(Config{BaseURL: srv.URL + "/", Token: "pat"})

	dto, err := c.GetIssue(context.Background(), "10001")
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if dto.Key != "PROJ-1" {
		t.Errorf("Key = %q, want PROJ-1", dto.Key)
	}
	if gotAuth != "Bearer pat" {
		t.Errorf("Authorization = %q, want Bearer pat", gotAuth)
	}
	if gotFields == "" {
		t.Error("expected fields parameter to be sent")
	}

	_, err = c.GetIssue(context.Background(), "404")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetIssue(404) error = %v, want ErrNotFound", err)
	}
}

func TestRESTClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(tt.status)
		}))
		c := NewRESTClient(Config{BaseURL: srv.URL, Email: "me@example.com", Token: "t"})
		_, err := c.SearchIssues(context.Background(), "parent = 1", 0, 50)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: error = %v, want %v", tt.status, err, tt.want)
		}
		srv.Close()
	}
}

func TestRESTClient_FindUserByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Query().Get("query") {
		case "ada@example.com":
			_, _ = w.Write([]byte(`[
				{"accountId":"acc-2","displayName":"Ada Other","emailAddress":"ada.other@example.com"},
				{"accountId":"acc-1","displayName":"Ada","emailAddress":"ada@example.com"}
			]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	c := NewRESTClient(Config{BaseURL: srv.URL, Email: "bot@example.com", Token: "secret"})

	u, err := c.FindUserByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.AccountID != "acc-1" || u.DisplayName != "Ada" {
		t.Errorf("FindUserByEmail = %+v, want acc-1/Ada", u)
	}

	_, err = c.FindUserByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("FindUserByEmail(ghost) error = %v, want ErrUserNotFound", err)
	}
}

func TestRESTClient_FindUserByEmail_FuzzyHitWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"accountId":"acc-9","displayName":"Ada Other","emailAddress":""}]`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	c := NewRESTClient(Config{BaseURL: srv.URL, Email: "bot@example.com", Token: "secret"})
	u, err := c.FindUserByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if u.AccountID != "acc-9" || u.Email != "ada@example.com" {
		t.Errorf("FindUserByEmail = %+v, want acc-9 for ada@example.com", u)
	}

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"email":"ada@example.com"`, `"account":"acc-9"`, "No exact email match"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}
