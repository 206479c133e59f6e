package report

import (
	"context"
	"fmt"
	"time"

	"worklog-report/internal/cache"
	"worklog-report/internal/config"
	"worklog-report/internal/hierarchy"
	"worklog-report/internal/jira"
	"worklog-report/internal/logging"
	"worklog-report/internal/tempo"
	"worklog-report/internal/worklog"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Params are the inputs of one report run.
type Params struct {
	Emails           []string
	IssueTypes       []string
	From             time.Time
	To               time.Time
	Offset           int
	Limit            int
	MaxPages         int
	IncludeMultiUser bool
	Workers          int
}

// UserReport is the outcome for one user.
type UserReport struct {
	User    jira.User
	Touched int // distinct issues the user logged time on in the range
	Records []worklog.Record
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	From       time.Time
	To         time.Time
	Users      []UserReport
	CacheStats []cache.Stats
}

// Combined unions the records of all users. It is not a plain concatenation:
// an issue reported under MultipleUsersLabel appears once, as emitted by the
// first user that produced it, so later users' copies (and their allUsers
// ordering) are dropped.
func (r *Result) Combined() []worklog.Record {
	var out []worklog.Record
	seenMulti := make(map[string]bool)
	for _, u := range r.Users {
		for _, rec := range u.Records {
			if rec.UserName == MultipleUsersLabel {
				if seenMulti[rec.IssueID] {
					continue
				}
				seenMulti[rec.IssueID] = true
			}
			out = append(out, rec)
		}
	}
	return out
}

// Runner reconciles worklogs against the issue hierarchy.
type Runner struct {
	jira   jira.Client
	tempo  tempo.Client
	fields jira.FieldMap
}

// NewRunner creates a runner over the two services.
func NewRunner(jc jira.Client, tc tempo.Client, fields jira.FieldMap) *Runner {
	return &Runner{jira: jc, tempo: tc, fields: fields}
}

// session holds the collaborators of a single run. Caches live exactly as long as it.
type session struct {
	params     Params
	logger     zerolog.Logger
	resolver   *hierarchy.Resolver
	classifier *hierarchy.Classifier
	fetcher    *worklog.Fetcher
	aggregator *worklog.Aggregator
}

func (r *Runner) newSession(p Params, logger zerolog.Logger) *session {
	caches := hierarchy.NewCaches()
	resolver := hierarchy.NewResolver(r.jira, r.fields, caches, hierarchy.Options{
		PageSize: p.Limit,
		MaxPages: p.MaxPages,
	})
	return &session{
		params:     p,
		logger:     logger,
		resolver:   resolver,
		classifier: hierarchy.NewClassifier(resolver, hierarchy.NewTypeSet(p.IssueTypes...)),
		fetcher: worklog.NewFetcher(r.tempo, resolver, worklog.NewStore(), worklog.Options{
			Offset:   p.Offset,
			Limit:    p.Limit,
			MaxPages: p.MaxPages,
		}),
		aggregator: worklog.NewAggregator(resolver),
	}
}

// Run produces the report. Only a failed user lookup aborts the run, and it does so
// before any worklog is fetched; every other remote failure degrades the result.
func (r *Runner) Run(ctx context.Context, p Params) (*Result, error) {
	if p.Workers <= 0 {
		p.Workers = 1
	}
	runID := uuid.NewString()
	logger := logging.WithRun(runID)

	users := make([]jira.User, 0, len(p.Emails))
	for _, email := range p.Emails {
		u, err := r.jira.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("resolving user %s: %w", email, err)
		}
		logger.Info().Str("email", email).Str("account", u.AccountID).Str("name", u.DisplayName).Msg("Resolved user")
		users = append(users, *u)
	}

	s := r.newSession(p, logger)
	res := &Result{RunID: runID, From: p.From, To: p.To}

	for _, u := range users {
		ur, err := s.processUser(ctx, u)
		if err != nil {
			return nil, err
		}
		res.Users = append(res.Users, ur)
	}

	res.CacheStats = append(s.resolver.CacheStats(), s.fetcher.Stats())
	for _, st := range res.CacheStats {
		logger.Info().Str("cache", st.Name).Int("hits", st.Hits).Int("misses", st.Misses).Int("entries", st.Entries).Msg("Cache summary")
	}
	return res, nil
}

func (s *session) processUser(ctx context.Context, u jira.User) (UserReport, error) {
	logger := s.logger.With().Str("user", u.AccountID).Logger()

	entries, err := s.fetcher.ByUser(ctx, u.AccountID, s.params.From, s.params.To)
	if err != nil {
		logger.Warn().Err(err).Int("kept", len(entries)).Msg("User worklogs incomplete, continuing with partial results")
	}

	touched := worklog.DistinctIssues(entries)
	qualified := s.classifier.Classify(ctx, touched)
	logger.Info().Int("worklogs", len(entries)).Int("touched", len(touched)).Int("qualifying", len(qualified)).Msg("Classified user issues")

	// Slots keep the classifier's order regardless of which worker finishes first.
	slots := make([]*worklog.Record, len(qualified))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.Workers)
	for i, q := range qualified {
		g.Go(func() error {
			rec, ok := s.aggregateIssue(gctx, q.ID, u)
			if ok {
				slots[i] = &rec
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return UserReport{}, err
	}

	report := UserReport{User: u, Touched: len(touched)}
	for _, rec := range slots {
		if rec != nil {
			report.Records = append(report.Records, *rec)
		}
	}
	logger.Info().Int("records", len(report.Records)).Msg("User report assembled")
	return report, nil
}

func (s *session) aggregateIssue(ctx context.Context, issueID string, u jira.User) (worklog.Record, bool) {
	entries := s.fetcher.ByIssue(ctx, issueID)

	attr, ok := Attribute(entries, u, s.params.IncludeMultiUser)
	if !ok {
		s.logger.Info().Str("issue", issueID).Str("user", u.AccountID).Msg("Skipping multi-user issue")
		return worklog.Record{}, false
	}

	detail := s.resolver.Issue(ctx, issueID)
	return s.aggregator.Aggregate(ctx, issueID, entries, detail, attr.UserName, attr.AllUsers), true
}

// Classify runs only the classification step for a list of issue ids.
func (r *Runner) Classify(ctx context.Context, ids []string, issueTypes []string) []hierarchy.Qualified {
	s := r.newSession(Params{IssueTypes: issueTypes}, log.Logger)
	return s.classifier.Classify(ctx, ids)
}

// ParamsFrom converts configured report settings into run parameters.
func ParamsFrom(rc config.ReportConfig) Params {
	return Params{
		Emails:           rc.Users,
		IssueTypes:       rc.IssueTypes,
		From:             rc.From,
		To:               rc.To,
		Offset:           rc.Offset,
		Limit:            rc.Limit,
		MaxPages:         rc.MaxPages,
		IncludeMultiUser: rc.IncludeMultiUser,
		Workers:          rc.Workers,
	}
}
