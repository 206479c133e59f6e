package jira

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when Jira answers 404 for an issue or resource.
	ErrNotFound = errors.New("jira: not found")
	// ErrUnauthorized is returned for 401/403 answers.
	ErrUnauthorized = errors.New("jira: authentication failed (401/403), check JIRA_EMAIL and JIRA_TOKEN")
	// ErrRateLimited is returned for 429 answers.
	ErrRateLimited = errors.New("jira: rate limit exceeded (429)")
	// ErrUserNotFound is returned when no account matches an email address.
	ErrUserNotFound = errors.New("jira: no account found for email")
)

// User is an account resolved through the user search.
type User struct {
	AccountID   string
	DisplayName string
	Email       string
}

// Client is the interface for interacting with the issue tracker.
type Client interface {
	GetIssue(ctx context.Context, id string) (*IssueDTO, error)
	SearchIssues(ctx context.Context, jql string, startAt int, maxResults int) (*SearchResponse, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string

	// APIVersion selects the REST path prefix ("2" or "3").
	APIVersion string

	// Email plus Token selects basic auth (Cloud); Token alone is sent as a Bearer PAT (Data Center).
	Email string
	Token string

	Fields FieldMap

	// Performance Settings
	Timeout      time.Duration
	RequestDelay time.Duration
}

// NewClient creates a new Jira client based on the provided configuration.
func NewClient(cfg Config) Client {
	return NewRESTClient(cfg)
}
