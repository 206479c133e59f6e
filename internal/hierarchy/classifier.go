package hierarchy

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// TypeSet is the set of wanted issue type names. Matching ignores case.
type TypeSet map[string]struct{}

// NewTypeSet builds a TypeSet, skipping blank names.
func NewTypeSet(names ...string) TypeSet {
	set := make(TypeSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

// Contains reports whether name is one of the wanted types.
func (s TypeSet) Contains(name string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Rule names the way an issue qualified.
type Rule string

const (
	RuleDirect Rule = "direct" // the touched issue itself has a wanted type
	RuleParent Rule = "parent" // the touched issue's parent has a wanted type
	RuleChild  Rule = "child"  // a child of the touched issue has a wanted type
)

// Qualified is one issue selected for the report.
type Qualified struct {
	ID     string `json:"id"`
	Rule   Rule   `json:"rule"`
	Source string `json:"source"` // the touched issue that led here
}

// Classifier selects, for a set of touched issues, the issues that qualify for reporting.
type Classifier struct {
	resolver *Resolver
	types    TypeSet
}

// NewClassifier creates a classifier for the given wanted types.
func NewClassifier(resolver *Resolver, types TypeSet) *Classifier {
	return &Classifier{resolver: resolver, types: types}
}

// Classify evaluates each touched id in order. The first matching rule decides:
//  1. the issue's own type is wanted: the issue qualifies;
//  2. otherwise its parent's type is wanted: the parent qualifies instead;
//  3. otherwise every child whose type is wanted qualifies.
//
// An issue that matches rule 1 is never expanded through rules 2 or 3. The result is
// de-duplicated and keeps first-discovery order.
func (c *Classifier) Classify(ctx context.Context, touched []string) []Qualified {
	var out []Qualified
	included := make(map[string]bool)

	include := func(q Qualified) {
		if included[q.ID] {
			return
		}
		included[q.ID] = true
		out = append(out, q)
	}

	for _, id := range touched {
		detail := c.resolver.Issue(ctx, id)

		if c.types.Contains(detail.Type) {
			include(Qualified{ID: id, Rule: RuleDirect, Source: id})
			continue
		}

		if detail.HasParent() {
			parent := c.resolver.Issue(ctx, detail.ParentID)
			if c.types.Contains(parent.Type) {
				include(Qualified{ID: detail.ParentID, Rule: RuleParent, Source: id})
				continue
			}
		}

		matched := 0
		for _, child := range c.resolver.Children(ctx, id) {
			if c.types.Contains(c.resolver.Issue(ctx, child).Type) {
				include(Qualified{ID: child, Rule: RuleChild, Source: id})
				matched++
			}
		}
		if matched == 0 {
			log.Debug().Str("issue", id).Str("type", detail.Type).Msg("Issue does not qualify")
		}
	}

	return out
}

// IDs flattens a classification result to issue ids.
func IDs(qs []Qualified) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
