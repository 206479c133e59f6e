package worklog

import (
	"context"
	"math"
	"slices"
	"time"

	"worklog-report/internal/hierarchy"
	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"
)

// HoursPerDay converts logged hours into working days.
const HoursPerDay = 8.0

// Record is one report row: the aggregated worklogs of an issue attributed to a user
// (or to several users).
type Record struct {
	IssueID   string
	IssueKey  string
	IssueType string
	Summary   string
	UserName  string
	Status    string

	// Zero when the issue has no worklogs.
	OldestWorklog time.Time
	LatestWorklog time.Time

	TimeSpentHours float64
	StoryPoints    jira.StoryPoints
	Days           float64
	// Velocity is nil unless Days > 0 and StoryPoints holds a non-negative number.
	Velocity *float64

	BusinessValue string
	Components    []string

	// Empty when the issue has no parent.
	ParentKey     string
	ParentType    string
	ParentSummary string

	AllUsers string
}

// Aggregator folds an issue's worklogs into a Record.
type Aggregator struct {
	resolver *hierarchy.Resolver
}

// NewAggregator creates an aggregator that resolves parent display fields through resolver.
func NewAggregator(resolver *hierarchy.Resolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// Aggregate builds the record for issueID from its worklogs (including those of its
// descendants) and its detail.
func (a *Aggregator) Aggregate(ctx context.Context, issueID string, entries []tempo.Entry, detail jira.IssueDetail, userName, allUsers string) Record {
	rec := Record{
		IssueID:       issueID,
		IssueKey:      detail.Key,
		IssueType:     detail.Type,
		Summary:       detail.Summary,
		UserName:      userName,
		Status:        detail.Status,
		StoryPoints:   detail.StoryPoints,
		BusinessValue: detail.BusinessValue,
		Components:    slices.Clone(detail.Components),
		AllUsers:      allUsers,
	}

	rec.OldestWorklog, rec.LatestWorklog = DateRange(entries)

	var seconds int64
	for _, e := range entries {
		if e.TimeSpentSeconds > 0 {
			seconds += e.TimeSpentSeconds
		}
	}
	rec.TimeSpentHours = Round(float64(seconds)/3600, 2)
	rec.Days = Round(rec.TimeSpentHours/HoursPerDay, 2)
	rec.Velocity = Velocity(detail.StoryPoints, rec.Days)

	if detail.HasParent() {
		parent := a.resolver.Issue(ctx, detail.ParentID)
		rec.ParentKey = parent.Key
		rec.ParentType = parent.Type
		rec.ParentSummary = parent.Summary
	}

	return rec
}

// DateRange returns the earliest and latest start dates of entries; both are zero
// when there are no entries.
func DateRange(entries []tempo.Entry) (oldest, latest time.Time) {
	if len(entries) == 0 {
		return time.Time{}, time.Time{}
	}

	dates := make([]time.Time, len(entries))
	for i, e := range entries {
		dates[i] = e.StartDate
	}
	slices.SortStableFunc(dates, func(a, b time.Time) int {
		return a.Compare(b)
	})
	return dates[0], dates[len(dates)-1]
}

// Velocity is story points per day, rounded to 4 places. It is nil when days is not
// positive or the estimate is absent, non-numeric or negative.
func Velocity(points jira.StoryPoints, days float64) *float64 {
	if days <= 0 || !points.Valid || points.Value < 0 {
		return nil
	}
	v := Round(points.Value/days, 4)
	return &v
}

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}
