package api

import "github.com/hwvendor/triage-orchestrator/pkg/models"

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	IssueID   string `json:"issue_id" binding:"required"`
	AgentType string `json:"agent_type,omitempty"`
	Username  string `json:"username,omitempty"`
}

// EscalateRequest is the optional body of POST /issues/:id/escalate.
type EscalateRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RuleRequest is the body of POST /rules and PUT /rules/:id.
type RuleRequest struct {
	ID         string                     `json:"id" binding:"required"`
	Name       string                     `json:"name"`
	Version    int                        `json:"version"`
	Enabled    bool                       `json:"enabled"`
	Triggers   models.Triggers            `json:"triggers"`
	DependsOn  []string                   `json:"depends_on,omitempty"`
	PreExtract []models.PreExtractPattern `json:"pre_extract,omitempty"`
	NeedsCode  bool                       `json:"needs_code,omitempty"`
	Body       string                     `json:"body"`
}
