// Package resultparser extracts an AnalysisResult from an agent's raw
// transcript text.
package resultparser

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// ParseFailure is returned when the transcript carries no recoverable
// result block or is missing a required field; callers promote this
// directly to a Task ParseFailure error.
type ParseFailure struct {
	Reason string
}

func (e *ParseFailure) Error() string { return e.Reason }

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
var taggedBlock = regexp.MustCompile(`(?s)<result>\s*(\{.*?\})\s*</result>`)

// Parse locates the last structured-result block in transcript — trying a
// fenced ```json block, then a bare top-level JSON object, then a
// <result>...</result> tagged block, each scanned backward so a block near
// the end of the transcript (after any preamble or "thinking" text) wins —
// and builds an AnalysisResult from it. matchedRuleID and agentName are
// always stamped onto the result regardless of what the agent emitted.
func Parse(transcript, matchedRuleID, agentName string) (*models.AnalysisResult, error) {
	block, found := locateResultBlock(transcript)
	if !found {
		return nil, &ParseFailure{Reason: "no structured result block found in agent transcript"}
	}

	root := gjson.Parse(block)
	problemType := strings.TrimSpace(root.Get("problem_type").String())
	rootCause := strings.TrimSpace(root.Get("root_cause").String())
	if problemType == "" || rootCause == "" {
		return nil, &ParseFailure{Reason: "result block is missing required field problem_type or root_cause"}
	}

	result := &models.AnalysisResult{
		ProblemType:      problemType,
		ProblemTypeEn:    root.Get("problem_type_en").String(),
		RootCause:        rootCause,
		RootCauseEn:      root.Get("root_cause_en").String(),
		Confidence:       defaultConfidence(root.Get("confidence").String()),
		ConfidenceReason: root.Get("confidence_reason").String(),
		KeyEvidence:      stringArray(root.Get("key_evidence")),
		UserReply:        root.Get("user_reply").String(),
		UserReplyEn:      root.Get("user_reply_en").String(),
		NeedsEngineer:    root.Get("needs_engineer").Bool(),
		RequiresMoreInfo: root.Get("requires_more_info").Bool(),
		NextSteps:        stringArray(root.Get("next_steps")),
		FixSuggestion:    root.Get("fix_suggestion").String(),
		MatchedRuleID:    matchedRuleID,
		AgentName:        agentName,
		RawTranscript:    transcript,
	}
	return result, nil
}

func locateResultBlock(transcript string) (string, bool) {
	if block, ok := lastValidMatch(fencedBlock, transcript); ok {
		return block, true
	}
	if block, ok := lastBalancedJSON(transcript); ok {
		return block, true
	}
	if block, ok := lastValidMatch(taggedBlock, transcript); ok {
		return block, true
	}
	return "", false
}

func lastValidMatch(re *regexp.Regexp, s string) (string, bool) {
	matches := re.FindAllStringSubmatch(s, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		candidate := matches[i][1]
		if gjson.Valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// lastBalancedJSON scans backward from the transcript's final '}',
// expanding to find its matching '{', and returns it if valid JSON;
// otherwise it retries from the next '}' before that, so an earlier
// unrelated closing brace never wins over the true result block.
func lastBalancedJSON(s string) (string, bool) {
	searchEnd := len(s)
	for {
		end := strings.LastIndex(s[:searchEnd], "}")
		if end == -1 {
			return "", false
		}
		depth := 0
		start := -1
		for i := end; i >= 0; i-- {
			switch s[i] {
			case '}':
				depth++
			case '{':
				depth--
			}
			if depth == 0 {
				start = i
				break
			}
		}
		if start != -1 {
			candidate := s[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		searchEnd = end
	}
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, item := range r.Array() {
		out = append(out, item.String())
	}
	return out
}

func defaultConfidence(raw string) models.Confidence {
	switch models.Confidence(raw) {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		return models.Confidence(raw)
	default:
		return models.ConfidenceLow
	}
}
