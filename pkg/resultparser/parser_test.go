package resultparser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func TestParseFencedBlockAtTranscriptEnd(t *testing.T) {
	transcript := "Let me investigate the logs...\n\nI found the issue.\n\n```json\n" +
		`{"problem_type": "bluetooth pairing", "root_cause": "stale bonding cache", "confidence": "high"}` +
		"\n```\n"

	res, err := Parse(transcript, "bluetooth-pairing", "claude_code")
	require.NoError(t, err)
	assert.Equal(t, "bluetooth pairing", res.ProblemType)
	assert.Equal(t, "stale bonding cache", res.RootCause)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, "bluetooth-pairing", res.MatchedRuleID)
	assert.Equal(t, "claude_code", res.AgentName)
}

func TestParsePicksLastFencedBlockWhenMultiplePresent(t *testing.T) {
	transcript := "```json\n" + `{"problem_type": "decoy", "root_cause": "decoy cause"}` + "\n```\n" +
		"more reasoning...\n\n```json\n" +
		`{"problem_type": "real", "root_cause": "real cause"}` + "\n```\n"

	res, err := Parse(transcript, "", "claude_code")
	require.NoError(t, err)
	assert.Equal(t, "real", res.ProblemType)
}

func TestParseBareJSONBlockWithoutFence(t *testing.T) {
	transcript := "Analysis complete.\n" +
		`{"problem_type": "battery drain", "root_cause": "rogue background service", "needs_engineer": true}`

	res, err := Parse(transcript, "battery-drain", "codex")
	require.NoError(t, err)
	assert.Equal(t, "battery drain", res.ProblemType)
	assert.True(t, res.NeedsEngineer)
	assert.Equal(t, models.ConfidenceLow, res.Confidence) // defaulted
}

func TestParseTaggedBlockFallback(t *testing.T) {
	transcript := "<result>\n" +
		`{"problem_type": "firmware crash", "root_cause": "null pointer in driver"}` +
		"\n</result>"

	res, err := Parse(transcript, "", "claude_code")
	require.NoError(t, err)
	assert.Equal(t, "firmware crash", res.ProblemType)
}

func TestParseDefaultsMissingOptionalFields(t *testing.T) {
	transcript := `{"problem_type": "x", "root_cause": "y"}`
	res, err := Parse(transcript, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.ConfidenceLow, res.Confidence)
	assert.Empty(t, res.KeyEvidence)
	assert.Empty(t, res.NextSteps)
	assert.False(t, res.NeedsEngineer)
	assert.False(t, res.RequiresMoreInfo)
}

func TestParseFailsWhenRequiredFieldsMissing(t *testing.T) {
	transcript := `{"confidence": "high"}`
	_, err := Parse(transcript, "", "")
	require.Error(t, err)
	var pf *ParseFailure
	require.True(t, errors.As(err, &pf))
}

func TestParseFailsWhenNoResultBlockPresent(t *testing.T) {
	_, err := Parse("just some prose with no structured data at all", "", "")
	require.Error(t, err)
	var pf *ParseFailure
	require.True(t, errors.As(err, &pf))
}

func TestParseKeyEvidenceArray(t *testing.T) {
	transcript := `{"problem_type": "x", "root_cause": "y", "key_evidence": ["line 1", "line 2"], "next_steps": ["restart device"]}`
	res, err := Parse(transcript, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"line 1", "line 2"}, res.KeyEvidence)
	assert.Equal(t, []string{"restart device"}, res.NextSteps)
}
