// Package rules implements the Rule Catalog (load/CRUD/hot-reload) and the
// Rule Engine (keyword+priority selection with dependency-closure ordering).
package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// header mirrors models.Rule's YAML-facing fields. Field order is
// irrelevant in YAML maps, and a keyword/depends_on list may be written
// either as a flow sequence ([a, b]) or as bulleted block lines (- a / - b)
// — both parse identically under yaml.v3.
type header struct {
	ID         string                     `yaml:"id"`
	Name       string                     `yaml:"name"`
	Version    int                        `yaml:"version"`
	Enabled    *bool                      `yaml:"enabled"`
	Triggers   models.Triggers            `yaml:"triggers"`
	DependsOn  []string                   `yaml:"depends_on"`
	PreExtract []models.PreExtractPattern `yaml:"pre_extract"`
	NeedsCode  bool                       `yaml:"needs_code"`
}

// ParseFile parses one rule file's raw contents into a models.Rule.
// The file is a metadata header delimited by `---` lines followed by a
// free-text Markdown body.
func ParseFile(path string, raw []byte) (*models.Rule, error) {
	headerYAML, body, err := splitHeaderBody(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing rule file %s: %w", path, err)
	}

	var h header
	if err := yaml.Unmarshal([]byte(headerYAML), &h); err != nil {
		return nil, fmt.Errorf("parsing rule header %s: %w", path, err)
	}
	if h.ID == "" {
		return nil, fmt.Errorf("rule file %s: missing required id", path)
	}

	enabled := true
	if h.Enabled != nil {
		enabled = *h.Enabled
	}

	for _, p := range h.PreExtract {
		if _, err := regexp.Compile(p.Regex); err != nil {
			return nil, fmt.Errorf("rule %s: pre_extract pattern %q does not compile: %w", h.ID, p.Name, err)
		}
	}

	if err := validateMarkdown(body); err != nil {
		slog.Warn("rule body markdown check failed", "rule_id", h.ID, "path", path, "error", err)
	}

	return &models.Rule{
		ID:         h.ID,
		Name:       h.Name,
		Version:    h.Version,
		Enabled:    enabled,
		Triggers:   h.Triggers,
		DependsOn:  h.DependsOn,
		PreExtract: h.PreExtract,
		NeedsCode:  h.NeedsCode,
		Body:       strings.TrimSpace(body),
		SourcePath: path,
	}, nil
}

// splitHeaderBody extracts the YAML header between the first pair of `---`
// delimiter lines and returns the remainder as the body.
func splitHeaderBody(raw string) (headerYAML, body string, err error) {
	lines := strings.Split(raw, "\n")
	start := -1
	end := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			if start == -1 {
				start = i
				continue
			}
			end = i
			break
		}
	}
	if start == -1 || end == -1 {
		return "", "", fmt.Errorf("missing --- delimited metadata header")
	}
	headerYAML = strings.Join(lines[start+1:end], "\n")
	body = strings.Join(lines[end+1:], "\n")
	return headerYAML, body, nil
}

// validateMarkdown confirms body parses as well-formed Markdown using
// goldmark, purely for a load-time sanity warning — never fatal.
func validateMarkdown(body string) error {
	var sb strings.Builder
	if err := goldmark.Convert([]byte(body), &sb); err != nil {
		return fmt.Errorf("rule body is not well-formed markdown: %w", err)
	}
	return nil
}
