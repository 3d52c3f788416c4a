// Package preextract implements the Log Pre-extractor: scanning a
// materialized logs/ tree for lines matching a rule's declared patterns and
// rendering them into a text block appended to the agent prompt.
package preextract

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// leadingTimestamp matches an ISO-like timestamp at the start of a log
// line: "2024-03-11T08:15:02" or "2024-03-11 08:15:02", with optional
// fractional seconds and zone.
var leadingTimestamp = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2}:\d{2})`)

// Extractor scans a workspace's logs/ tree against a set of patterns.
type Extractor struct {
	cfg *config.PreExtractConfig
	log *slog.Logger
}

func New(cfg *config.PreExtractConfig, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{cfg: cfg, log: log.With("component", "preextract")}
}

// match is one retained line plus the order it was first seen in, so
// output preserves first-occurrence order even though files are scanned
// one at a time.
type match struct {
	seq  int
	line string
}

// Extract scans every file under logsDir for each pattern, in pattern
// declaration order, and renders "name -> [lines]" blocks. eventDateHint
// narrows date_filter patterns to lines timestamped on that day, ±1.
func (e *Extractor) Extract(ctx context.Context, logsDir string, patterns []models.PreExtractPattern, eventDateHint *time.Time) (string, error) {
	files, err := listFiles(logsDir)
	if err != nil {
		return "", fmt.Errorf("listing logs tree: %w", err)
	}

	var blocks []string
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return "", fmt.Errorf("pattern %s: %w", p.Name, err)
		}

		matches, err := e.scanPattern(ctx, files, re, p, eventDateHint)
		if err != nil {
			return "", fmt.Errorf("pattern %s: %w", p.Name, err)
		}

		blocks = append(blocks, renderBlock(p.Name, matches))
	}

	return strings.Join(blocks, "\n\n"), nil
}

func (e *Extractor) scanPattern(ctx context.Context, files []string, re *regexp.Regexp, p models.PreExtractPattern, eventDateHint *time.Time) ([]string, error) {
	var matches []match
	seq := 0

	for _, path := range files {
		if len(matches) >= e.cfg.MaxLinesPerPattern {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := e.scanFile(path, re, p, eventDateHint, e.cfg.MaxLinesPerPattern-len(matches))
		if err != nil {
			e.log.Warn("skipping unreadable log file", "path", path, "pattern", p.Name, "error", err)
			continue
		}
		for _, line := range found {
			matches = append(matches, match{seq: seq, line: line})
			seq++
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.line
	}
	return out, nil
}

// scanFile streams path line-by-line, bounded by a soft per-file deadline:
// once elapsed, the file is abandoned (not killed) and whatever matched so
// far is kept.
func (e *Extractor) scanFile(path string, re *regexp.Regexp, p models.PreExtractPattern, eventDateHint *time.Time, remaining int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	deadline := time.Now().Add(e.cfg.PerPatternDeadline)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var found []string
	for scanner.Scan() {
		if len(found) >= remaining {
			break
		}
		if time.Now().After(deadline) {
			e.log.Warn("soft per-file scan deadline hit", "path", path, "pattern", p.Name)
			break
		}

		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if p.DateFilter && eventDateHint != nil && !withinDateWindow(line, *eventDateHint) {
			continue
		}
		found = append(found, line)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return found, err
	}
	return found, nil
}

// withinDateWindow reports whether line's leading timestamp falls on hint's
// day, the day before, or the day after.
func withinDateWindow(line string, hint time.Time) bool {
	m := leadingTimestamp.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	lineDate, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return false
	}
	diff := lineDate.Sub(truncateToDay(hint)).Hours() / 24
	return diff >= -1 && diff <= 1
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func renderBlock(name string, lines []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s -> [", name)
	for i, l := range lines {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(l)
	}
	sb.WriteString("]")
	return sb.String()
}

func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
