package store

import (
	"context"
	"errors"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
)

var (
	// ErrIssueNotFound indicates no issue exists with the given record ID.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrTaskNotFound indicates no task exists with the given task ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrResultNotFound indicates the task has no AnalysisResult yet.
	ErrResultNotFound = errors.New("result not found")

	// ErrActiveTaskExists indicates the issue already has a non-terminal
	// task, violating the at-most-one-in-flight invariant.
	ErrActiveTaskExists = errors.New("issue already has an active task")
)

// Store is the full persistence surface: the queue.TaskStore the worker
// pool depends on, the pipeline.IssueStore/ResultStore the pipeline
// depends on, and the listing/admission/admin surface pkg/api depends
// on. Postgres and SQLite both implement it.
type Store interface {
	queue.TaskStore

	GetIssue(ctx context.Context, issueID string) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
	ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error)
	SoftDeleteIssue(ctx context.Context, issueID string) error

	// FindIssueByExternalLink returns the Issue carrying link among its
	// ExternalLinks, or ErrIssueNotFound. Used by tracker webhook
	// ingestion to dedupe repeated events for the same external ticket.
	FindIssueByExternalLink(ctx context.Context, link string) (*models.Issue, error)

	// CreateTask admits a new Task for issueID, enforcing the
	// at-most-one-non-terminal-task-per-issue invariant with
	// ErrActiveTaskExists.
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	TasksForIssue(ctx context.Context, issueID string) ([]*models.Task, error)

	SaveResult(ctx context.Context, result *models.AnalysisResult) error
	GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error)
	// CurrentResultForIssue returns the AnalysisResult of issueID's most
	// recent done Task.
	CurrentResultForIssue(ctx context.Context, issueID string) (*models.AnalysisResult, error)

	// RecordEvent appends a best-effort audit-trail entry. Failures are
	// logged by callers, never propagated as task failures.
	RecordEvent(ctx context.Context, taskID, issueID, kind, detail string) error

	// Health reports the backing connection pool's health, for GET /health.
	Health(ctx context.Context) (*HealthStatus, error)

	Close() error
}
