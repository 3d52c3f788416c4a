package rules

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// Selection is the engine's output: the primary rule an issue matched plus
// the full ordered execution chain (every matched rule and its transitive
// dependencies, dependencies first, the primary rule last).
type Selection struct {
	Primary *models.Rule
	Chain   []*models.Rule
}

// Select runs the keyword-match / priority-tie-break / dependency-closure
// algorithm over description against every enabled rule in the catalog.
// A match is never empty: when no keyworded rule fires, the catalog's
// fallback rule is selected.
func Select(catalog *Catalog, description string) (*Selection, error) {
	rules := catalog.all()

	normalized := normalize(description)

	var matched []*models.Rule
	for _, r := range rules {
		if !r.Enabled || r.IsFallback() {
			continue
		}
		if matchesAny(normalized, r.Triggers.Keywords) {
			matched = append(matched, r)
		}
	}

	var primary *models.Rule
	if len(matched) > 0 {
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Triggers.Priority != matched[j].Triggers.Priority {
				return matched[i].Triggers.Priority > matched[j].Triggers.Priority
			}
			return matched[i].ID < matched[j].ID
		})
		primary = matched[0]
	} else {
		fb, err := catalog.Fallback()
		if err != nil {
			return nil, err
		}
		primary = fb
	}

	chain, err := dependencyChain(rules, matched, primary)
	if err != nil {
		return nil, err
	}

	return &Selection{Primary: primary, Chain: chain}, nil
}

// normalize applies NFKC so keyword matching is not sensitive to
// compatibility-equivalent codepoint sequences across languages (full-width
// vs. half-width punctuation, composed vs. decomposed CJK forms, and
// similar), then case-folds for ASCII keyword authors.
func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func matchesAny(normalizedDescription string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(normalizedDescription, normalize(kw)) {
			return true
		}
	}
	return false
}

// dependencyChain computes the union of every matched rule's transitive
// depends_on closure (not just primary's) and returns it as a reverse
// topological order: every rule's dependencies appear before it, and
// primary appears last. matched may be empty (the fallback-rule case),
// in which case the closure is seeded from primary alone.
func dependencyChain(rules map[string]*models.Rule, matched []*models.Rule, primary *models.Rule) ([]*models.Rule, error) {
	seeds := make([]*models.Rule, 0, len(matched)+1)
	for _, r := range matched {
		if r.ID == primary.ID {
			continue
		}
		seeds = append(seeds, r)
	}
	seeds = append(seeds, primary)

	closure := map[string]*models.Rule{}
	var collect func(id string) error
	collect = func(id string) error {
		if _, ok := closure[id]; ok {
			return nil
		}
		r, ok := rules[id]
		if !ok {
			return fmt.Errorf("selection chain references unknown rule %s", id)
		}
		closure[id] = r
		for _, dep := range r.DependsOn {
			if err := collect(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, seed := range seeds {
		if err := collect(seed.ID); err != nil {
			return nil, err
		}
	}

	visited := map[string]bool{}
	var order []*models.Rule
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		r := closure[id]
		deps := append([]string(nil), r.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		order = append(order, r)
	}
	for _, seed := range seeds {
		visit(seed.ID)
	}

	return order, nil
}
