package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"worklog-report/internal/cache"
	"worklog-report/internal/jira"

	"github.com/rs/zerolog/log"
)

// Caches are the run-scoped memo tables owned by the hierarchy resolvers.
type Caches struct {
	Issues   *cache.Store[string, jira.IssueDetail]
	Children *cache.Store[string, []string]
}

// NewCaches creates empty issue and child-set caches.
func NewCaches() *Caches {
	return &Caches{
		Issues:   cache.NewStore[string, jira.IssueDetail]("issue"),
		Children: cache.NewStore[string, []string]("children"),
	}
}

// Options bounds the child search pagination.
type Options struct {
	PageSize int
	MaxPages int
}

// Resolver answers issue detail and child-set questions against the issue tracker,
// memoizing every answer for the lifetime of the run.
type Resolver struct {
	client jira.Client
	fields jira.FieldMap
	caches *Caches
	opts   Options
}

// NewResolver wires a resolver to a client and the run's caches.
func NewResolver(client jira.Client, fields jira.FieldMap, caches *Caches, opts Options) *Resolver {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	return &Resolver{
		client: client,
		fields: fields.Merge(jira.DefaultFieldMap()),
		caches: caches,
		opts:   opts,
	}
}

// Issue returns the detail record of an issue. Lookup failures are not returned:
// the issue resolves to jira.UnknownIssue, which is cached so it is never retried.
func (r *Resolver) Issue(ctx context.Context, id string) jira.IssueDetail {
	if strings.TrimSpace(id) == "" {
		log.Warn().Msg("Issue lookup requested for an empty id")
		return jira.UnknownIssue(id)
	}

	detail, _ := r.caches.Issues.GetOrLoad(ctx, id, func(ctx context.Context) (jira.IssueDetail, error) {
		dto, err := r.client.GetIssue(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("issue", id).Str("call", "GetIssue").Msg("Issue lookup failed, substituting Unknown")
			return jira.UnknownIssue(id), nil
		}
		d := jira.MapIssue(*dto, r.fields)
		if d.ID == "" {
			d.ID = id
		}
		return d, nil
	})
	return detail
}

// Children returns the ids of issues whose parent is parentID, either as sub-tasks or
// through the secondary parent link. Details of the returned issues are added to the
// issue cache from the same search response. A failed search yields (and caches) an
// empty set.
func (r *Resolver) Children(ctx context.Context, parentID string) []string {
	if strings.TrimSpace(parentID) == "" {
		return nil
	}

	ids, _ := r.caches.Children.GetOrLoad(ctx, parentID, func(ctx context.Context) ([]string, error) {
		return r.searchChildren(ctx, parentID), nil
	})
	return ids
}

func (r *Resolver) childJQL(parentID string) string {
	return fmt.Sprintf("parent = %s OR %s = %s", parentID, r.fields.ParentLink, parentID)
}

func (r *Resolver) searchChildren(ctx context.Context, parentID string) []string {
	jql := r.childJQL(parentID)
	seen := make(map[string]bool)
	ids := []string{}

	startAt := 0
	for page := 0; ; page++ {
		if page >= r.opts.MaxPages {
			log.Warn().Str("issue", parentID).Int("maxPages", r.opts.MaxPages).Int("children", len(ids)).
				Msg("Child search truncated at page ceiling")
			break
		}

		resp, err := r.client.SearchIssues(ctx, jql, startAt, r.opts.PageSize)
		if err != nil {
			log.Error().Err(err).Str("issue", parentID).Str("call", "SearchIssues").Str("jql", jql).
				Msg("Child search failed, treating issue as childless")
			return []string{}
		}

		for _, dto := range resp.Issues {
			if dto.ID == "" || dto.ID == parentID || seen[dto.ID] {
				continue
			}
			seen[dto.ID] = true
			ids = append(ids, dto.ID)

			// The search already carries the child's fields; reuse them.
			r.caches.Issues.Put(dto.ID, jira.MapIssue(dto, r.fields))
		}

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	log.Debug().Str("issue", parentID).Int("children", len(ids)).Msg("Resolved child issues")
	return ids
}

// Descendants returns every issue below id, breadth first, each id at most once.
// Hierarchies that loop back on themselves terminate because visited ids are skipped.
func (r *Resolver) Descendants(ctx context.Context, id string) []string {
	visited := map[string]bool{id: true}
	var out []string

	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, child := range r.Children(ctx, current) {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// CacheStats returns the counters of the issue and child caches.
func (r *Resolver) CacheStats() []cache.Stats {
	return cache.Collect(r.caches.Issues, r.caches.Children)
}
