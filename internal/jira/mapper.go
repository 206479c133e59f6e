package jira

import (
	"strconv"
	"strings"
)

// FieldMap names the deployment-specific field ids of the logical fields we report on.
type FieldMap struct {
	StoryPoints   string `yaml:"story_points"`
	BusinessValue string `yaml:"business_value"`
	Status        string `yaml:"status"`
	Components    string `yaml:"components"`
	// ParentLink is the JQL name of the secondary (non sub-task) parent relation, e.g. "Parent Link".
	ParentLink string `yaml:"parent_link"`
}

// DefaultFieldMap returns the ids used by a stock Jira Cloud site.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		StoryPoints:   "customfield_10016",
		BusinessValue: "customfield_10030",
		Status:        "status",
		Components:    "components",
		ParentLink:    `"Parent Link"`,
	}
}

// Merge returns m with every empty id replaced by the one from fallback.
func (m FieldMap) Merge(fallback FieldMap) FieldMap {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return FieldMap{
		StoryPoints:   pick(m.StoryPoints, fallback.StoryPoints),
		BusinessValue: pick(m.BusinessValue, fallback.BusinessValue),
		Status:        pick(m.Status, fallback.Status),
		Components:    pick(m.Components, fallback.Components),
		ParentLink:    pick(m.ParentLink, fallback.ParentLink),
	}
}

// RequestFields is the value of the "fields" query parameter needed by MapIssue.
func (m FieldMap) RequestFields() string {
	fields := []string{"issuetype", "summary", "parent"}
	seen := map[string]bool{"issuetype": true, "summary": true, "parent": true}
	for _, f := range []string{m.Status, m.Components, m.StoryPoints, m.BusinessValue} {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return strings.Join(fields, ",")
}

// StoryPoints is an optional story point estimate. Raw holds the text of a
// value that was present but not numeric.
type StoryPoints struct {
	Value float64
	Valid bool
	Raw   string
}

// String renders the estimate for reports; absent estimates render as "None".
func (p StoryPoints) String() string {
	switch {
	case p.Valid:
		return strconv.FormatFloat(p.Value, 'f', -1, 64)
	case p.Raw != "":
		return p.Raw
	default:
		return "None"
	}
}

// IssueDetail is the reporting view of one issue.
type IssueDetail struct {
	ID            string
	Key           string
	Type          string
	Summary       string
	ParentID      string // empty when the issue has no parent
	StoryPoints   StoryPoints
	BusinessValue string // empty when unset
	Status        string
	Components    []string
	// Unknown marks the placeholder substituted when the issue could not be fetched.
	Unknown bool
}

// HasParent reports whether the issue references a parent.
func (d IssueDetail) HasParent() bool {
	return d.ParentID != ""
}

// UnknownIssue is the placeholder detail cached for issues whose lookup failed.
func UnknownIssue(id string) IssueDetail {
	return IssueDetail{
		ID:      id,
		Key:     "Unknown",
		Type:    "Unknown",
		Summary: "Unknown",
		Status:  "Unknown",
		Unknown: true,
	}
}

// MapIssue transforms a Jira DTO into an IssueDetail using the configured field ids.
func MapIssue(item IssueDTO, fields FieldMap) IssueDetail {
	detail := IssueDetail{
		ID:  item.ID,
		Key: item.Key,
	}

	detail.Type, _ = item.Fields.Text("issuetype")
	detail.Summary, _ = item.Fields.Text("summary")

	if parent, ok := item.Fields.Ref("parent"); ok {
		detail.ParentID = parent.ID
	}

	if v, ok, raw := item.Fields.Number(fields.StoryPoints); ok {
		detail.StoryPoints = StoryPoints{Value: v, Valid: true}
	} else if raw != "" {
		detail.StoryPoints = StoryPoints{Raw: raw}
	}

	detail.BusinessValue, _ = item.Fields.Text(fields.BusinessValue)
	detail.Status, _ = item.Fields.Text(fields.Status)
	detail.Components = item.Fields.Names(fields.Components)

	return detail
}
