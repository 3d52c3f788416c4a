package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// Catalog holds an immutable, validated snapshot of every loaded Rule and
// serves atomic swap-on-reload the same way config.AgentRegistry does for
// agent routing: readers never observe a partially-reloaded set.
type Catalog struct {
	mu       sync.RWMutex
	snapshot *snapshot
	dir      string
	log      *slog.Logger
}

type snapshot struct {
	rules    map[string]*models.Rule
	ordered  []*models.Rule // stable id order, for listing
	fallback *models.Rule
}

// NewCatalog constructs an empty catalog rooted at dir. Call Reload to
// populate it.
func NewCatalog(dir string, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{
		dir:      dir,
		log:      log.With("component", "rule_catalog"),
		snapshot: &snapshot{rules: map[string]*models.Rule{}},
	}
}

// Reload walks dir for *.md rule files, parses and validates every one, and
// atomically replaces the catalog's snapshot only if the whole batch is
// valid. A bad single file does not take down the rest of the catalog: it
// is logged and skipped, matching the load-time-warning philosophy used for
// configuration.
func (c *Catalog) Reload() error {
	entries, err := collectRuleFiles(c.dir)
	if err != nil {
		return fmt.Errorf("listing rule files in %s: %w", c.dir, err)
	}

	parsed := make(map[string]*models.Rule, len(entries))
	var order []string
	for _, path := range entries {
		raw, err := os.ReadFile(path)
		if err != nil {
			c.log.Warn("skipping unreadable rule file", "path", path, "error", err)
			continue
		}
		rule, err := ParseFile(path, raw)
		if err != nil {
			c.log.Warn("skipping invalid rule file", "path", path, "error", err)
			continue
		}
		if _, dup := parsed[rule.ID]; dup {
			c.log.Warn("skipping duplicate rule id", "path", path, "id", rule.ID)
			continue
		}
		parsed[rule.ID] = rule
		order = append(order, rule.ID)
	}

	if err := validateDependencies(parsed); err != nil {
		return fmt.Errorf("rule catalog validation: %w", err)
	}

	fallback, err := selectFallback(parsed)
	if err != nil {
		return err
	}

	sort.Strings(order)
	ordered := make([]*models.Rule, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, parsed[id])
	}

	next := &snapshot{rules: parsed, ordered: ordered, fallback: fallback}

	c.mu.Lock()
	c.snapshot = next
	c.mu.Unlock()

	c.log.Info("rule catalog reloaded", "rule_count", len(parsed), "fallback_rule_id", fallback.ID)
	return nil
}

// Snapshot returns the current immutable rule set.
func (c *Catalog) Snapshot() []*models.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Rule, len(c.snapshot.ordered))
	copy(out, c.snapshot.ordered)
	return out
}

// Get returns a single rule by id.
func (c *Catalog) Get(id string) (*models.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.snapshot.rules[id]
	return r, ok
}

// Fallback returns the catalog's universal fallback rule.
func (c *Catalog) Fallback() (*models.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot.fallback == nil {
		return nil, fmt.Errorf("rule catalog has no fallback rule loaded")
	}
	return c.snapshot.fallback, nil
}

// all returns the rule map under lock, used internally by the engine.
func (c *Catalog) all() map[string]*models.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.rules
}

func collectRuleFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// validateDependencies checks every depends_on reference resolves within
// the batch and that the dependency graph is acyclic, so the engine's
// topological sort can never stall.
func validateDependencies(rules map[string]*models.Rule) error {
	for id, r := range rules {
		for _, dep := range r.DependsOn {
			if _, ok := rules[dep]; !ok {
				return fmt.Errorf("rule %s depends on unknown rule %s", id, dep)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(rules))
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cycle detected in rule dependency graph at %s", id)
		}
		color[id] = gray
		for _, dep := range rules[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for id := range rules {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// selectFallback picks the catalog's universal fallback rule: among rules
// with empty keyword triggers, the one with the lowest priority value (ties
// broken by id ascending), guaranteeing every issue description resolves to
// at least one rule.
func selectFallback(rules map[string]*models.Rule) (*models.Rule, error) {
	var candidates []*models.Rule
	for _, r := range rules {
		if r.Enabled && r.IsFallback() {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("rule catalog has no enabled fallback rule (a rule with empty triggers.keywords)")
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Triggers.Priority != candidates[j].Triggers.Priority {
			return candidates[i].Triggers.Priority < candidates[j].Triggers.Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], nil
}
