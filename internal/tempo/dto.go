package tempo

import (
	"strconv"
	"time"
)

// WorklogPage is one page of a worklog listing.
type WorklogPage struct {
	Self     string       `json:"self,omitempty"`
	Metadata PageMetadata `json:"metadata"`
	Results  []WorklogDTO `json:"results"`
}

// HasNext reports whether the service advertises a further page.
func (p *WorklogPage) HasNext() bool {
	return p != nil && p.Metadata.Next != ""
}

// PageMetadata carries the pagination state of a WorklogPage.
type PageMetadata struct {
	Count  int    `json:"count"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Next   string `json:"next,omitempty"`
}

// WorklogDTO is a single logged block of time.
type WorklogDTO struct {
	TempoWorklogID   int64  `json:"tempoWorklogId"`
	Issue            IDRef  `json:"issue"`
	TimeSpentSeconds int64  `json:"timeSpentSeconds"`
	StartDate        string `json:"startDate"`
	StartTime        string `json:"startTime,omitempty"`
	Description      string `json:"description,omitempty"`
	Author           Author `json:"author"`
}

// IDRef is the issue reference embedded in a worklog. Tempo sends the id as a number.
type IDRef struct {
	ID   int64  `json:"id"`
	Self string `json:"self,omitempty"`
}

// String returns the issue id in the string form used by Jira.
func (r IDRef) String() string {
	if r.ID == 0 {
		return ""
	}
	return strconv.FormatInt(r.ID, 10)
}

// Author identifies the account that logged the time.
type Author struct {
	AccountID string `json:"accountId"`
	Self      string `json:"self,omitempty"`
}

// Entry is the normalized worklog record used across the fetcher and aggregator.
type Entry struct {
	IssueID          string
	AuthorID         string
	StartDate        time.Time
	TimeSpentSeconds int64
}

// ToEntry converts a DTO. A start date that fails to parse yields a zero StartDate.
func (w WorklogDTO) ToEntry() Entry {
	start, _ := time.Parse(DateLayout, w.StartDate)
	return Entry{
		IssueID:          w.Issue.String(),
		AuthorID:         w.Author.AccountID,
		StartDate:        start,
		TimeSpentSeconds: w.TimeSpentSeconds,
	}
}
