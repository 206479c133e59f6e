package report

import (
	"fmt"
	"sort"
	"strings"

	"worklog-report/internal/tempo"
	"worklog-report/internal/visuals"
	"worklog-report/internal/worklog"
)

// UserTotals summarizes one user's records.
type UserTotals struct {
	Name    string  `json:"name"`
	Touched int     `json:"touched_issues"`
	Records int     `json:"records"`
	Hours   float64 `json:"hours"`
	Multi   int     `json:"multi_user_records"`
}

// Totals computes per-user figures in run order.
func Totals(res *Result) []UserTotals {
	out := make([]UserTotals, 0, len(res.Users))
	for _, u := range res.Users {
		t := UserTotals{Name: displayName(u), Touched: u.Touched, Records: len(u.Records)}
		for _, rec := range u.Records {
			t.Hours += rec.TimeSpentHours
			if rec.UserName == MultipleUsersLabel {
				t.Multi++
			}
		}
		t.Hours = worklog.Round(t.Hours, 2)
		out = append(out, t)
	}
	return out
}

// HoursByType sums the combined records per issue type, largest first.
func HoursByType(records []worklog.Record) []visuals.Slice {
	sums := make(map[string]float64)
	for _, rec := range records {
		sums[rec.IssueType] += rec.TimeSpentHours
	}
	out := make([]visuals.Slice, 0, len(sums))
	for k, v := range sums {
		out = append(out, visuals.Slice{Label: k, Value: worklog.Round(v, 2)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// Summary renders the Markdown overview of a run.
func Summary(res *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Worklog report %s to %s\n\n", res.From.Format(tempo.DateLayout), res.To.Format(tempo.DateLayout))
	fmt.Fprintf(&sb, "Run `%s`\n\n", res.RunID)

	totals := Totals(res)
	sb.WriteString("## Users\n\n")
	sb.WriteString("| User | Touched issues | Records | Multi-user | Hours |\n")
	sb.WriteString("|---|---:|---:|---:|---:|\n")
	slices := make([]visuals.Slice, 0, len(totals))
	shared := 0
	for _, t := range totals {
		fmt.Fprintf(&sb, "| %s | %d | %d | %d | %.2f |\n", t.Name, t.Touched, t.Records, t.Multi, t.Hours)
		slices = append(slices, visuals.Slice{Label: t.Name, Value: t.Hours})
		shared += t.Multi
	}
	if shared > 0 {
		fmt.Fprintf(&sb, "\nThe combined file lists each %s issue once, as reported for the first user that logged it.\n", MultipleUsersLabel)
	}
	if chart := visuals.GeneratePieChart("Hours per user", slices); chart != "" {
		sb.WriteString("\n" + chart + "\n")
	}

	if byType := HoursByType(res.Combined()); len(byType) > 0 {
		sb.WriteString("\n## Issue types\n\n")
		sb.WriteString(visuals.GenerateBarChart("Hours per issue type", "Hours", byType) + "\n")
	}

	if len(res.CacheStats) > 0 {
		sb.WriteString("\n## Caches\n\n")
		sb.WriteString("| Cache | Hits | Misses | Entries |\n")
		sb.WriteString("|---|---:|---:|---:|\n")
		for _, st := range res.CacheStats {
			fmt.Fprintf(&sb, "| %s | %d | %d | %d |\n", st.Name, st.Hits, st.Misses, st.Entries)
		}
	}
	return sb.String()
}

func displayName(u UserReport) string {
	if u.User.DisplayName != "" {
		return u.User.DisplayName
	}
	return u.User.AccountID
}
