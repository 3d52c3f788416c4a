package preextract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestExtractCollectsMatchesInFirstOccurrenceOrder(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log", "2024-03-11T08:00:00 boot\n2024-03-11T08:00:01 ERROR pairing failed\n")
	writeLog(t, dir, "b.log", "2024-03-11T08:00:02 ERROR pairing retry\n")

	cfg := config.DefaultPreExtractConfig()
	ex := New(cfg, nil)

	patterns := []models.PreExtractPattern{{Name: "errors", Regex: "ERROR"}}
	out, err := ex.Extract(context.Background(), dir, patterns, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "pairing failed")
	assert.Contains(t, out, "pairing retry")
	assert.Less(t, indexOf(out, "pairing failed"), indexOf(out, "pairing retry"))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestExtractCapsLinesPerPattern(t *testing.T) {
	dir := t.TempDir()
	content := ""
	for i := 0; i < 10; i++ {
		content += "ERROR line\n"
	}
	writeLog(t, dir, "a.log", content)

	cfg := config.DefaultPreExtractConfig()
	cfg.MaxLinesPerPattern = 3
	ex := New(cfg, nil)

	patterns := []models.PreExtractPattern{{Name: "errors", Regex: "ERROR"}}
	out, err := ex.Extract(context.Background(), dir, patterns, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, countOccurrences(out, "ERROR line"))
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}

func TestExtractAppliesDateFilterWindow(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log",
		"2024-01-01T00:00:00 ERROR too early\n"+
			"2024-03-10T23:00:00 ERROR day before\n"+
			"2024-03-11T12:00:00 ERROR same day\n"+
			"2024-03-12T01:00:00 ERROR day after\n"+
			"2024-06-01T00:00:00 ERROR too late\n")

	cfg := config.DefaultPreExtractConfig()
	ex := New(cfg, nil)
	hint := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	patterns := []models.PreExtractPattern{{Name: "errors", Regex: "ERROR", DateFilter: true}}
	out, err := ex.Extract(context.Background(), dir, patterns, &hint)
	require.NoError(t, err)

	assert.Contains(t, out, "day before")
	assert.Contains(t, out, "same day")
	assert.Contains(t, out, "day after")
	assert.NotContains(t, out, "too early")
	assert.NotContains(t, out, "too late")
}
