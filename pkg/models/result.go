package models

import "time"

// Confidence is the AnalysisResult's self-reported confidence band.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AnalysisResult is produced by exactly one successful (done) Task.
type AnalysisResult struct {
	TaskID              string     `json:"task_id"`
	IssueID             string     `json:"issue_id"`
	ProblemType         string     `json:"problem_type"`
	ProblemTypeEn       string     `json:"problem_type_en,omitempty"`
	RootCause           string     `json:"root_cause"`
	RootCauseEn         string     `json:"root_cause_en,omitempty"`
	Confidence          Confidence `json:"confidence"`
	ConfidenceReason    string     `json:"confidence_reason,omitempty"`
	KeyEvidence         []string   `json:"key_evidence,omitempty"`
	UserReply           string     `json:"user_reply,omitempty"`
	UserReplyEn         string     `json:"user_reply_en,omitempty"`
	NeedsEngineer       bool       `json:"needs_engineer"`
	RequiresMoreInfo    bool       `json:"requires_more_info"`
	NextSteps           []string   `json:"next_steps,omitempty"`
	FixSuggestion       string     `json:"fix_suggestion,omitempty"`
	MatchedRuleID       string     `json:"matched_rule_id"`
	AgentName           string     `json:"agent_name"`
	CodeTreeUnavailable bool       `json:"code_tree_unavailable,omitempty"`
	RawTranscript       string     `json:"raw_transcript,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
