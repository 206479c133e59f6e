package worklog

import (
	"context"
	"fmt"
	"time"

	"worklog-report/internal/cache"
	"worklog-report/internal/hierarchy"
	"worklog-report/internal/tempo"

	"github.com/rs/zerolog/log"
)

// Options controls worklog pagination.
type Options struct {
	Offset   int
	Limit    int
	MaxPages int
}

// Fetcher retrieves raw worklog entries from the time tracker.
// Per-user listings are never cached; per-issue listings (issue plus descendants)
// are cached under the issue id for the rest of the run.
type Fetcher struct {
	client   tempo.Client
	resolver *hierarchy.Resolver
	issues   *cache.Store[string, []tempo.Entry]
	opts     Options
}

// NewStore creates the per-issue worklog cache.
func NewStore() *cache.Store[string, []tempo.Entry] {
	return cache.NewStore[string, []tempo.Entry]("worklogs")
}

// NewFetcher wires a fetcher. The resolver supplies child issues for per-issue listings.
func NewFetcher(client tempo.Client, resolver *hierarchy.Resolver, store *cache.Store[string, []tempo.Entry], opts Options) *Fetcher {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return &Fetcher{
		client:   client,
		resolver: resolver,
		issues:   store,
		opts:     opts,
	}
}

// ByUser lists the worklogs of one account in [from, to]. On a page failure the entries
// gathered so far are returned together with the error.
func (f *Fetcher) ByUser(ctx context.Context, accountID string, from, to time.Time) ([]tempo.Entry, error) {
	what := "user " + accountID
	return f.paginate(ctx, what, func(offset int) (*tempo.WorklogPage, error) {
		return f.client.UserWorklogs(ctx, accountID, from, to, offset, f.opts.Limit)
	})
}

// ByIssue lists the complete worklog history of an issue and all of its descendants.
// Descendants are transitive, so an Epic's listing also holds its grandchildren's
// entries and overlaps the listings of the Stories beneath it.
// Failures are logged and whatever was retrieved is kept; the result is cached
// under issueID.
func (f *Fetcher) ByIssue(ctx context.Context, issueID string) []tempo.Entry {
	entries, _ := f.issues.GetOrLoad(ctx, issueID, func(ctx context.Context) ([]tempo.Entry, error) {
		members := append([]string{issueID}, f.resolver.Descendants(ctx, issueID)...)

		var all []tempo.Entry
		for _, member := range members {
			got, err := f.paginate(ctx, "issue "+member, func(offset int) (*tempo.WorklogPage, error) {
				return f.client.IssueWorklogs(ctx, member, offset, f.opts.Limit)
			})
			if err != nil {
				log.Warn().Err(err).Str("issue", issueID).Str("member", member).Int("kept", len(got)).
					Msg("Issue worklogs incomplete, continuing with partial results")
			}
			all = append(all, got...)
		}

		log.Debug().Str("issue", issueID).Int("members", len(members)).Int("worklogs", len(all)).Msg("Collected issue worklogs")
		return all, nil
	})
	return entries
}

// paginate walks pages from the configured offset until the service reports no further
// page or the page ceiling is reached.
func (f *Fetcher) paginate(ctx context.Context, what string, fetch func(offset int) (*tempo.WorklogPage, error)) ([]tempo.Entry, error) {
	var entries []tempo.Entry
	offset := f.opts.Offset

	for page := 0; ; page++ {
		if page >= f.opts.MaxPages {
			log.Warn().Str("source", what).Int("maxPages", f.opts.MaxPages).Int("kept", len(entries)).
				Msg("Worklog pagination truncated at page ceiling")
			return entries, nil
		}

		if err := ctx.Err(); err != nil {
			return entries, err
		}

		resp, err := fetch(offset)
		if err != nil {
			log.Error().Err(err).Str("source", what).Int("offset", offset).Msg("Worklog page fetch failed")
			return entries, fmt.Errorf("worklogs of %s at offset %d: %w", what, offset, err)
		}

		for _, dto := range resp.Results {
			entries = append(entries, dto.ToEntry())
		}

		if !resp.HasNext() || len(resp.Results) == 0 {
			return entries, nil
		}
		offset += f.opts.Limit
	}
}

// Stats returns the per-issue worklog cache counters.
func (f *Fetcher) Stats() cache.Stats {
	return f.issues.Stats()
}

// DistinctIssues returns the issue ids referenced by entries, in order of first appearance.
func DistinctIssues(entries []tempo.Entry) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IssueID == "" || seen[e.IssueID] {
			continue
		}
		seen[e.IssueID] = true
		ids = append(ids, e.IssueID)
	}
	return ids
}

// OtherAuthors returns the authors of entries other than primary, in order of first appearance.
func OtherAuthors(entries []tempo.Entry, primary string) []string {
	seen := map[string]bool{primary: true}
	var out []string
	for _, e := range entries {
		if e.AuthorID == "" || seen[e.AuthorID] {
			continue
		}
		seen[e.AuthorID] = true
		out = append(out, e.AuthorID)
	}
	return out
}
