package engine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"worklog-report/internal/jira"
	"worklog-report/internal/tempo"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TempoPrefix is the path under which the fake worklog service is mounted.
const TempoPrefix = "/tempo"

// Server fakes the Jira REST endpoints and the Tempo worklog endpoints over a
// Dataset. It counts requests per route and can be told to fail issues.
type Server struct {
	ds     *Dataset
	fields jira.FieldMap
	router *gin.Engine

	mu       sync.Mutex
	requests map[string]int
	failing  map[string]bool
}

// NewServer creates a fake Jira and Tempo API over ds. Custom field ids come
// from fields, with gaps filled from the defaults.
func NewServer(ds *Dataset, fields jira.FieldMap) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		ds:       ds,
		fields:   fields.Merge(jira.DefaultFieldMap()),
		router:   gin.New(),
		requests: make(map[string]int),
		failing:  make(map[string]bool),
	}
	s.router.Use(gin.Recovery())
	s.router.Use(func(c *gin.Context) {
		c.Next()
		log.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Int("status", c.Writer.Status()).Msg("Fake API request")
	})

	api := s.router.Group("/rest/api/:version")
	api.GET("/issue/:id", s.handleIssue)
	api.GET("/search", s.handleSearch)
	api.GET("/user/search", s.handleUserSearch)

	wl := s.router.Group(TempoPrefix + "/worklogs")
	wl.GET("/user/:account", s.handleUserWorklogs)
	wl.GET("/issue/:id", s.handleIssueWorklogs)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailIssue makes every issue and worklog request for id answer 500.
func (s *Server) FailIssue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

// Requests returns how often a route was hit, e.g. "issue/10001" or "search".
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

func (s *Server) hit(route string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[route]++
	for id := range s.failing {
		if strings.HasSuffix(route, "/"+id) {
			return false
		}
	}
	return true
}

func (s *Server) handleIssue(c *gin.Context) {
	id := c.Param("id")
	if !s.hit("issue/" + id) {
		c.String(http.StatusInternalServerError, "injected failure")
		return
	}
	is, ok := s.ds.Issue(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	c.JSON(http.StatusOK, s.toDTO(is))
}

func (s *Server) handleSearch(c *gin.Context) {
	s.hit("search")
	var parent string
	if _, err := fmt.Sscanf(c.Query("jql"), "parent = %s", &parent); err != nil {
		c.String(http.StatusBadRequest, "unsupported jql")
		return
	}
	startAt, _ := strconv.Atoi(c.Query("startAt"))
	maxResults, _ := strconv.Atoi(c.Query("maxResults"))
	if maxResults <= 0 {
		maxResults = 50
	}

	children := s.ds.Children(parent)
	resp := jira.SearchResponse{StartAt: startAt, MaxResults: maxResults, Total: len(children)}
	for i := startAt; i < len(children) && i < startAt+maxResults; i++ {
		resp.Issues = append(resp.Issues, s.toDTO(children[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUserSearch(c *gin.Context) {
	s.hit("user/search")
	query := strings.ToLower(c.Query("query"))
	out := []jira.UserDTO{}
	for _, u := range s.ds.Users {
		if strings.Contains(strings.ToLower(u.Email), query) || strings.Contains(strings.ToLower(u.DisplayName), query) {
			out = append(out, jira.UserDTO{
				AccountID:    u.AccountID,
				DisplayName:  u.DisplayName,
				EmailAddress: u.Email,
				Active:       true,
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleUserWorklogs(c *gin.Context) {
	account := c.Param("account")
	s.hit("worklogs/user/" + account)
	from, errFrom := time.Parse(tempo.DateLayout, c.Query("from"))
	to, errTo := time.Parse(tempo.DateLayout, c.Query("to"))
	if errFrom != nil || errTo != nil {
		c.String(http.StatusBadRequest, "from and to are required")
		return
	}

	var matches []tempo.WorklogDTO
	for _, wl := range s.ds.Worklogs {
		if wl.Author.AccountID != account {
			continue
		}
		day, err := time.Parse(tempo.DateLayout, wl.StartDate)
		if err != nil || day.Before(from) || day.After(to) {
			continue
		}
		matches = append(matches, wl)
	}
	c.JSON(http.StatusOK, page(c.Request, matches))
}

func (s *Server) handleIssueWorklogs(c *gin.Context) {
	id := c.Param("id")
	if !s.hit("worklogs/issue/" + id) {
		c.String(http.StatusInternalServerError, "injected failure")
		return
	}
	var matches []tempo.WorklogDTO
	for _, wl := range s.ds.Worklogs {
		if wl.Issue.String() == id {
			matches = append(matches, wl)
		}
	}
	c.JSON(http.StatusOK, page(c.Request, matches))
}

func page(r *http.Request, all []tempo.WorklogDTO) tempo.WorklogPage {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	p := tempo.WorklogPage{
		Self:     r.URL.String(),
		Metadata: tempo.PageMetadata{Offset: offset, Limit: limit},
		Results:  []tempo.WorklogDTO{},
	}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		p.Results = append(p.Results, all[i])
	}
	p.Metadata.Count = len(p.Results)
	if offset+limit < len(all) {
		next := *r.URL
		nq := next.Query()
		nq.Set("offset", strconv.Itoa(offset+limit))
		next.RawQuery = nq.Encode()
		p.Metadata.Next = next.String()
	}
	return p
}

func (s *Server) toDTO(is Issue) jira.IssueDTO {
	fields := jira.Fields{}
	set := func(id string, v any) {
		if id == "" || v == nil {
			return
		}
		raw, err := json.Marshal(v)
		if err == nil {
			fields[id] = raw
		}
	}

	set("issuetype", map[string]string{"name": is.Type})
	set("summary", is.Summary)
	if is.ParentID != "" {
		if parent, ok := s.ds.Issue(is.ParentID); ok {
			set("parent", jira.IssueRef{ID: parent.ID, Key: parent.Key})
		}
	}
	set(s.fields.Status, map[string]string{"name": is.Status})
	set(s.fields.StoryPoints, is.StoryPoints)
	if is.BusinessValue != "" {
		set(s.fields.BusinessValue, map[string]string{"value": is.BusinessValue})
	}
	comps := make([]map[string]string, 0, len(is.Components))
	for _, c := range is.Components {
		comps = append(comps, map[string]string{"name": c})
	}
	set(s.fields.Components, comps)

	return jira.IssueDTO{ID: is.ID, Key: is.Key, Fields: fields}
}
