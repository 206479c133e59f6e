package jira

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// SearchResponse is the top-level container for Jira search results.
type SearchResponse struct {
	StartAt    int        `json:"startAt"`
	MaxResults int        `json:"maxResults"`
	Total      int        `json:"total"`
	Issues     []IssueDTO `json:"issues"`
}

// IssueDTO represents a single issue as returned by the issue and search endpoints.
type IssueDTO struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// IssueRef is the {id, key} shape Jira uses for links to other issues.
type IssueRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// UserDTO is one entry of the user search response.
type UserDTO struct {
	AccountID    string `json:"accountId"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// Fields is the raw "fields" object of an issue. Custom field ids differ between
// deployments, so values are decoded lazily by field id.
type Fields map[string]json.RawMessage

func (f Fields) raw(id string) (json.RawMessage, bool) {
	if f == nil || id == "" {
		return nil, false
	}
	v, ok := f[id]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return trimmed, true
}

// Text renders a field as display text. Strings and numbers are returned as-is,
// option-like objects yield their "value" or "name", arrays are joined with ", ".
func (f Fields) Text(id string) (string, bool) {
	raw, ok := f.raw(id)
	if !ok {
		return "", false
	}
	s := textOf(raw)
	return s, s != ""
}

// Number decodes a numeric field. The second result is false when the field is
// absent; the third result carries the display text of a present but non-numeric value.
func (f Fields) Number(id string) (float64, bool, string) {
	raw, ok := f.raw(id)
	if !ok {
		return 0, false, ""
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, ""
	}
	text := textOf(raw)
	if n, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		return n, true, ""
	}
	return 0, false, text
}

// Names decodes a list of named objects (components, labels, versions).
func (f Fields) Names(id string) []string {
	raw, ok := f.raw(id)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := textOf(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if s := textOf(item); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// Ref decodes an issue reference such as "parent".
func (f Fields) Ref(id string) (IssueRef, bool) {
	raw, ok := f.raw(id)
	if !ok {
		return IssueRef{}, false
	}
	var ref IssueRef
	if err := json.Unmarshal(raw, &ref); err != nil || (ref.ID == "" && ref.Key == "") {
		return IssueRef{}, false
	}
	return ref, true
}

func textOf(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"value", "name", "displayName", "key"} {
			if v, ok := obj[k]; ok {
				if s := textOf(v); s != "" {
					return s
				}
			}
		}
		return ""
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			if s := textOf(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}
