package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"
	"worklog-report/internal/worklog"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
)

const (
	// NoneText renders an absent value.
	NoneText = "None"
	// NoDateText renders the date of an issue without worklogs.
	NoDateText = "1970-01-01"
)

// Header is the column order of every report file.
var Header = []string{
	"issue_id",
	"issue_key",
	"issue_type",
	"summary",
	"user_name",
	"status",
	"oldest_worklog_date",
	"latest_worklog_date",
	"time_spent_hours",
	"story_points",
	"days",
	"velocity",
	"business_value",
	"components",
	"parent_issue_key",
	"parent_issue_type",
	"parent_summary",
	"all_users",
}

// Row renders a record in Header order.
func Row(rec worklog.Record) []string {
	return []string{
		rec.IssueID,
		rec.IssueKey,
		rec.IssueType,
		rec.Summary,
		rec.UserName,
		orNone(rec.Status),
		formatDate(rec.OldestWorklog),
		formatDate(rec.LatestWorklog),
		formatFloat(rec.TimeSpentHours),
		rec.StoryPoints.String(),
		formatFloat(rec.Days),
		formatOptional(rec.Velocity),
		orNone(rec.BusinessValue),
		strings.Join(rec.Components, ", "),
		orNone(rec.ParentKey),
		orNone(rec.ParentType),
		orNone(rec.ParentSummary),
		rec.AllUsers,
	}
}

// jsonRecord is the JSONL shape. Absent values are null instead of placeholders.
type jsonRecord struct {
	IssueID        string   `json:"issue_id"`
	IssueKey       string   `json:"issue_key"`
	IssueType      string   `json:"issue_type"`
	Summary        string   `json:"summary"`
	UserName       string   `json:"user_name"`
	Status         string   `json:"status"`
	OldestWorklog  *string  `json:"oldest_worklog_date"`
	LatestWorklog  *string  `json:"latest_worklog_date"`
	TimeSpentHours float64  `json:"time_spent_hours"`
	StoryPoints    any      `json:"story_points"`
	Days           float64  `json:"days"`
	Velocity       *float64 `json:"velocity"`
	BusinessValue  *string  `json:"business_value"`
	Components     []string `json:"components"`
	ParentKey      *string  `json:"parent_issue_key"`
	ParentType     *string  `json:"parent_issue_type"`
	ParentSummary  *string  `json:"parent_summary"`
	AllUsers       string   `json:"all_users"`
}

func toJSON(rec worklog.Record) jsonRecord {
	out := jsonRecord{
		IssueID:        rec.IssueID,
		IssueKey:       rec.IssueKey,
		IssueType:      rec.IssueType,
		Summary:        rec.Summary,
		UserName:       rec.UserName,
		Status:         rec.Status,
		OldestWorklog:  datePtr(rec.OldestWorklog),
		LatestWorklog:  datePtr(rec.LatestWorklog),
		TimeSpentHours: rec.TimeSpentHours,
		Days:           rec.Days,
		Velocity:       rec.Velocity,
		BusinessValue:  strPtr(rec.BusinessValue),
		Components:     rec.Components,
		ParentKey:      strPtr(rec.ParentKey),
		ParentType:     strPtr(rec.ParentType),
		ParentSummary:  strPtr(rec.ParentSummary),
		AllUsers:       rec.AllUsers,
	}
	switch {
	case rec.StoryPoints.Valid:
		out.StoryPoints = rec.StoryPoints.Value
	case rec.StoryPoints.Raw != "":
		out.StoryPoints = rec.StoryPoints.Raw
	}
	if out.Components == nil {
		out.Components = []string{}
	}
	return out
}

// EncodeCSV renders records with a header line.
func EncodeCSV(records []worklog.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := w.Write(Row(rec)); err != nil {
			return nil, fmt.Errorf("failed to encode record for issue %s: %w", rec.IssueID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeJSONL renders one JSON object per record and line.
func EncodeJSONL(records []worklog.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(toJSON(rec)); err != nil {
			return nil, fmt.Errorf("failed to encode record for issue %s: %w", rec.IssueID, err)
		}
	}
	return buf.Bytes(), nil
}

// Write persists the per-user files, the combined file and, when requested, the
// Markdown summary into dir. It returns the paths written.
func Write(res *Result, dir string, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	suffix := fmt.Sprintf("%s_%s", res.From.Format(tempo.DateLayout), res.To.Format(tempo.DateLayout))
	var written []string

	emit := func(base string, records []worklog.Record) error {
		for _, f := range formats {
			var (
				data []byte
				err  error
			)
			switch f {
			case "csv":
				data, err = EncodeCSV(records)
			case "jsonl":
				data, err = EncodeJSONL(records)
			default:
				continue
			}
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", base, suffix, f))
			if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			written = append(written, path)
		}
		return nil
	}

	for i, stem := range stems(res.Users) {
		if err := emit(stem, res.Users[i].Records); err != nil {
			return written, err
		}
	}
	if err := emit(combinedStem, res.Combined()); err != nil {
		return written, err
	}

	for _, f := range formats {
		if f != "md" {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("summary_%s.md", suffix))
		if err := atomic.WriteFile(path, strings.NewReader(Summary(res))); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	log.Info().Str("dir", dir).Int("files", len(written)).Msg("Report files written")
	return written, nil
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

const combinedStem = "all_users"

// stems assigns each user a file name stem that is unique within the run and
// never equals the combined file's stem. A colliding slug is qualified with the
// account id, then numbered.
func stems(users []UserReport) []string {
	taken := map[string]bool{combinedStem: true}
	out := make([]string, len(users))
	for i, u := range users {
		stem := Slug(u.User)
		if taken[stem] {
			if acc := Slug(jira.User{AccountID: u.User.AccountID}); acc != "user" {
				stem += "_" + acc
			}
		}
		for base, n := stem, 2; taken[stem]; n++ {
			stem = fmt.Sprintf("%s_%d", base, n)
		}
		if stem != Slug(u.User) {
			log.Warn().Str("user", u.User.AccountID).Str("file", stem).Msg("File name taken, using a qualified one")
		}
		taken[stem] = true
		out[i] = stem
	}
	return out
}

// Slug derives a file name stem for a user: the local part of the email, falling
// back to the display name and then the account id.
func Slug(u jira.User) string {
	candidates := []string{u.Email, u.DisplayName, u.AccountID}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		candidates[0] = u.Email[:at]
	}
	for _, c := range candidates {
		s := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(c), "_"), "_")
		if s != "" {
			return s
		}
	}
	return "user"
}

func orNone(s string) string {
	if s == "" {
		return NoneText
	}
	return s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return NoDateText
	}
	return t.Format(tempo.DateLayout)
}

func datePtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(tempo.DateLayout)
	return &s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptional(f *float64) string {
	if f == nil {
		return NoneText
	}
	return formatFloat(*f)
}
