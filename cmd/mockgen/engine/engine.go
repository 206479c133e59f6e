package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"

	"github.com/natefinch/atomic"
)

// DatasetFile is the name Save writes into the output directory.
const DatasetFile = "dataset.json"

type GeneratorConfig struct {
	Seed             int64
	Users            int
	Epics            int
	StoriesPerEpic   int
	SubtasksPerStory int
	From             time.Time
	To               time.Time
}

// Issue is a generated Jira issue. StoryPoints holds a number, a non-numeric
// string or nil.
type Issue struct {
	ID            string   `json:"id"`
	Key           string   `json:"key"`
	Type          string   `json:"type"`
	Summary       string   `json:"summary"`
	ParentID      string   `json:"parent_id,omitempty"`
	Status        string   `json:"status"`
	StoryPoints   any      `json:"story_points,omitempty"`
	BusinessValue string   `json:"business_value,omitempty"`
	Components    []string `json:"components,omitempty"`
}

// Dataset is a self-consistent set of users, issues and worklogs.
type Dataset struct {
	Users    []jira.User        `json:"users"`
	Issues   []Issue            `json:"issues"`
	Worklogs []tempo.WorklogDTO `json:"worklogs"`
}

// Issue returns the issue with the given id or key.
func (d *Dataset) Issue(idOrKey string) (Issue, bool) {
	for _, is := range d.Issues {
		if is.ID == idOrKey || is.Key == idOrKey {
			return is, true
		}
	}
	return Issue{}, false
}

// Children returns the direct children of an issue in generation order.
func (d *Dataset) Children(parentID string) []Issue {
	var out []Issue
	for _, is := range d.Issues {
		if is.ParentID == parentID {
			out = append(out, is)
		}
	}
	return out
}

var (
	statuses   = []string{"To Do", "In Progress", "In Review", "Done"}
	components = []string{"Backend", "Frontend", "Platform", "Data"}
	points     = []float64{1, 2, 3, 5, 8, 13}
)

// Generate builds a dataset of Epic -> Story|Bug -> Sub-task trees. The same
// config always yields the same dataset.
func Generate(cfg GeneratorConfig) *Dataset {
	if cfg.To.IsZero() {
		cfg.To = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	}
	if cfg.From.IsZero() {
		cfg.From = cfg.To.AddDate(0, 0, -30)
	}
	if cfg.Users <= 0 {
		cfg.Users = 3
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	ds := &Dataset{}
	for i := 1; i <= cfg.Users; i++ {
		ds.Users = append(ds.Users, jira.User{
			AccountID:   fmt.Sprintf("acc-%d", i),
			DisplayName: fmt.Sprintf("User %d", i),
			Email:       fmt.Sprintf("user%d@example.com", i),
		})
	}

	nextID := 10000
	newIssue := func(typ, parentID string) Issue {
		nextID++
		n := nextID - 10000
		return Issue{
			ID:       strconv.Itoa(nextID),
			Key:      fmt.Sprintf("MOCK-%d", n),
			Type:     typ,
			Summary:  fmt.Sprintf("%s %d", typ, n),
			ParentID: parentID,
			Status:   statuses[rng.Intn(len(statuses))],
		}
	}

	days := int(cfg.To.Sub(cfg.From).Hours()/24) + 1
	worklogID := int64(0)
	logWork := func(issueID string) {
		id, _ := strconv.ParseInt(issueID, 10, 64)
		owner := ds.Users[rng.Intn(len(ds.Users))]
		authors := []jira.User{owner}
		if len(ds.Users) > 1 && rng.Float64() < 0.25 {
			other := ds.Users[rng.Intn(len(ds.Users))]
			if other.AccountID != owner.AccountID {
				authors = append(authors, other)
			}
		}
		for _, a := range authors {
			for n := 1 + rng.Intn(3); n > 0; n-- {
				day := cfg.From.AddDate(0, 0, rng.Intn(days))
				// Some effort predates the range; issue totals still count it.
				if rng.Float64() < 0.1 {
					day = cfg.From.AddDate(0, 0, -1-rng.Intn(14))
				}
				worklogID++
				ds.Worklogs = append(ds.Worklogs, tempo.WorklogDTO{
					TempoWorklogID:   worklogID,
					Issue:            tempo.IDRef{ID: id},
					TimeSpentSeconds: int64(900 * (2 + rng.Intn(15))),
					StartDate:        day.Format(tempo.DateLayout),
					StartTime:        "09:00:00",
					Author:           tempo.Author{AccountID: a.AccountID},
				})
			}
		}
	}

	for e := 0; e < cfg.Epics; e++ {
		epic := newIssue("Epic", "")
		epic.BusinessValue = strconv.Itoa(10 * (1 + rng.Intn(10)))
		ds.Issues = append(ds.Issues, epic)

		for s := 0; s < cfg.StoriesPerEpic; s++ {
			typ := "Story"
			if rng.Float64() < 0.2 {
				typ = "Bug"
			}
			story := newIssue(typ, epic.ID)
			switch r := rng.Float64(); {
			case r < 0.1:
				// no estimate
			case r < 0.15:
				story.StoryPoints = "TBD"
			default:
				story.StoryPoints = points[rng.Intn(len(points))]
			}
			story.Components = []string{components[rng.Intn(len(components))]}
			ds.Issues = append(ds.Issues, story)
			if rng.Float64() < 0.5 {
				logWork(story.ID)
			}

			for t := 0; t < cfg.SubtasksPerStory; t++ {
				sub := newIssue("Sub-task", story.ID)
				ds.Issues = append(ds.Issues, sub)
				logWork(sub.ID)
			}
		}
	}
	return ds
}

// Save writes the dataset as indented JSON into outDir.
func Save(outDir string, ds *Dataset) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, DatasetFile)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write dataset: %w", err)
	}
	return path, nil
}

// Load reads a dataset written by Save.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}
	return &ds, nil
}
