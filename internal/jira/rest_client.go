package jira

import (
	"context"
	"encoding/json"
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

type restClient struct {
	cfg        Config
	httpClient *http.Client

	throttleMu  sync.Mutex
	lastRequest time.Time
}

// NewRESTClient creates a client talking to the Jira REST API.
func NewRESTClient(cfg Config) Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = "3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.Fields = cfg.Fields.Merge(DefaultFieldMap())
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &restClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *restClient) throttle() {
	if c.cfg.RequestDelay <= 0 {
		return
	}
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.cfg.RequestDelay {
		wait := c.cfg.RequestDelay - elapsed
		log.Debug().Dur("wait", wait).Msg("Throttling Jira request")
		time.Sleep(wait)
	}
	c.lastRequest = time.Now()
}

func (c *restClient) authenticateRequest(req *http.Request) {
	if c.cfg.Email != "" && c.cfg.Token != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.Token)
		return
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
	}
}

func (c *restClient) apiURL(path string, params url.Values) string {
	u := fmt.Sprintf("%s/rest/api/%s/%s", c.cfg.BaseURL, c.cfg.APIVersion, strings.TrimLeft(path, "/"))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// getJSON performs a single GET and decodes the body into out. what names the
// resource in error messages.
func (c *restClient) getJSON(ctx context.Context, u string, what string, out any) error {
	c.throttle()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authenticateRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request for %s failed: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w", what, ErrUnauthorized)
		case http.StatusTooManyRequests:
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				return fmt.Errorf("%s: %w, retry after %s seconds", what, ErrRateLimited, retryAfter)
			}
			return fmt.Errorf("%s: %w", what, ErrRateLimited)
		default:
			return fmt.Errorf("Jira API returned status %d for %s", resp.StatusCode, what)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", what, err)
	}
	return nil
}

func (c *restClient) GetIssue(ctx context.Context, id string) (*IssueDTO, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("jira: empty issue id")
	}

	params := url.Values{}
	params.Set("fields", c.cfg.Fields.RequestFields())

	u := c.apiURL("issue/"+url.PathEscape(id), params)
	log.Debug().Str("issue", id).Msg("Requesting issue from Jira")

	var issue IssueDTO
	if err := c.getJSON(ctx, u, "issue "+id, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *restClient) SearchIssues(ctx context.Context, jql string, startAt int, maxResults int) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("jql", jql)
	params.Set("startAt", strconv.Itoa(startAt))
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("fields", c.cfg.Fields.RequestFields())

	u := c.apiURL("search", params)
	log.Debug().Str("jql", jql).Int("startAt", startAt).Msg("Jira search details")

	var result SearchResponse
	if err := c.getJSON(ctx, u, "search", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *restClient) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", ErrUserNotFound)
	}

	params := url.Values{}
	params.Set("query", email)
	u := c.apiURL("user/search", params)

	var users []UserDTO
	if err := c.getJSON(ctx, u, "user search", &users); err != nil {
		return nil, err
	}

	// Prefer an exact email match; some sites hide emails, then the first hit wins.
	var match *UserDTO
	for i := range users {
		if strings.EqualFold(users[i].EmailAddress, email) {
			match = &users[i]
			break
		}
	}
	if match == nil && len(users) > 0 {
		match = &users[0]
		log.Warn().
			Str("email", email).
			Str("account", match.AccountID).
			Str("name", match.DisplayName).
			Msg("No exact email match, using the first user search hit")
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}

	id := match.AccountID
	if id == "" {
		id = match.Name
	}
	return &User{
		AccountID:   id,
		DisplayName: match.DisplayName,
		Email:       email,
	}, nil
}
