package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// RuleInput is the caller-supplied shape for creating or updating a rule,
// mirroring the header fields a hand-written rule file would declare.
type RuleInput struct {
	ID         string
	Name       string
	Version    int
	Enabled    bool
	Triggers   models.Triggers
	DependsOn  []string
	PreExtract []models.PreExtractPattern
	NeedsCode  bool
	Body       string
}

// Put renders input as a rule file under the catalog's directory and
// reloads the catalog so readers observe it immediately. A new rule's file
// name is the rule id with a .md extension; an existing rule with the same
// id is overwritten in its own file, whatever that file is named. Put both
// creates and overwrites — same idempotent shape as an HTTP PUT.
func (c *Catalog) Put(input RuleInput) error {
	enabled := input.Enabled
	h := header{
		ID:         input.ID,
		Name:       input.Name,
		Version:    input.Version,
		Enabled:    &enabled,
		Triggers:   input.Triggers,
		DependsOn:  input.DependsOn,
		PreExtract: input.PreExtract,
		NeedsCode:  input.NeedsCode,
	}
	headerYAML, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshalling rule header for %s: %w", input.ID, err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(headerYAML)
	sb.WriteString("---\n\n")
	sb.WriteString(strings.TrimSpace(input.Body))
	sb.WriteString("\n")

	path := filepath.Join(c.dir, input.ID+".md")
	if existing, ok := c.Get(input.ID); ok && existing.SourcePath != "" {
		path = existing.SourcePath
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing rule file %s: %w", path, err)
	}

	if err := c.Reload(); err != nil {
		return fmt.Errorf("rule %s written but catalog reload failed: %w", input.ID, err)
	}
	return nil
}

// Delete removes a rule's backing file and reloads the catalog. Deleting
// the catalog's only fallback rule is rejected by the subsequent Reload
// (no enabled fallback remains), leaving the file removed but the prior
// in-memory snapshot intact until the caller fixes the catalog.
func (c *Catalog) Delete(id string) error {
	r, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	if err := os.Remove(r.SourcePath); err != nil {
		return fmt.Errorf("removing rule file %s: %w", r.SourcePath, err)
	}
	return c.Reload()
}
