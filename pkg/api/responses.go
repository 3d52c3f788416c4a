package api

import (
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

// AnalyzeResponse is returned by POST /analyze.
type AnalyzeResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// CancelResponse is returned by POST /tasks/:task_id/cancel.
type CancelResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// EscalateResponse is returned by POST /issues/:id/escalate.
type EscalateResponse struct {
	Status string `json:"status"` // "sent" or "noop"
}

// IssueListResponse is returned by GET /issues.
type IssueListResponse struct {
	Issues []*models.Issue `json:"issues"`
	Total  int             `json:"total"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string              `json:"status"`
	Version    string              `json:"version"`
	Database   *store.HealthStatus `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth   `json:"worker_pool,omitempty"`
}
