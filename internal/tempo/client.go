package tempo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrUnauthorized is returned for 401/403 answers.
	ErrUnauthorized = errors.New("tempo: authentication failed (401/403), check TEMPO_TOKEN")
	// ErrRateLimited is returned for 429 answers.
	ErrRateLimited = errors.New("tempo: rate limit exceeded (429)")
)

// DateLayout is the day format used by the worklog endpoints.
const DateLayout = "2006-01-02"

// Client is the interface for reading worklogs from the time tracker.
type Client interface {
	UserWorklogs(ctx context.Context, accountID string, from, to time.Time, offset, limit int) (*WorklogPage, error)
	IssueWorklogs(ctx context.Context, issueID string, offset, limit int) (*WorklogPage, error)
}

// Config holds the connection settings for the time tracker.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	RequestDelay time.Duration
}

type httpClient struct {
	cfg  Config
	http *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
}

// NewClient creates a client for the Tempo REST API (v4 paths).
func NewClient(cfg Config) Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tempo.io/4"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &httpClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *httpClient) throttle() {
	if c.cfg.RequestDelay <= 0 {
		return
	}
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()

	if elapsed := time.Since(c.lastRequest); elapsed < c.cfg.RequestDelay {
		time.Sleep(c.cfg.RequestDelay - elapsed)
	}
	c.lastRequest = time.Now()
}

func (c *httpClient) UserWorklogs(ctx context.Context, accountID string, from, to time.Time, offset, limit int) (*WorklogPage, error) {
	params := url.Values{}
	params.Set("from", from.Format(DateLayout))
	params.Set("to", to.Format(DateLayout))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	u := fmt.Sprintf("%s/worklogs/user/%s?%s", c.cfg.BaseURL, url.PathEscape(accountID), params.Encode())
	return c.getPage(ctx, u, "worklogs of user "+accountID)
}

func (c *httpClient) IssueWorklogs(ctx context.Context, issueID string, offset, limit int) (*WorklogPage, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))

	u := fmt.Sprintf("%s/worklogs/issue/%s?%s", c.cfg.BaseURL, url.PathEscape(issueID), params.Encode())
	return c.getPage(ctx, u, "worklogs of issue "+issueID)
}

func (c *httpClient) getPage(ctx context.Context, u string, what string) (*WorklogPage, error) {
	c.throttle()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	log.Debug().Str("url", u).Msg("Requesting worklogs from Tempo")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, fmt.Errorf("%s: %w", what, ErrUnauthorized)
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("%s: %w", what, ErrRateLimited)
		default:
			return nil, fmt.Errorf("Tempo API returned status %d for %s: %s", resp.StatusCode, what, strings.TrimSpace(string(body)))
		}
	}

	var page WorklogPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", what, err)
	}
	return &page, nil
}
