// Package taskadmit centralizes the at-most-one-non-terminal-task
// admission rule shared by every Task entry point (the HTTP API and the
// tracker webhook ingestor): a second admission attempt for an Issue
// that already has a non-terminal Task returns that Task unchanged
// instead of erroring or queuing a duplicate.
package taskadmit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

// Admit creates a new Task for issue, or returns its existing
// non-terminal Task unchanged if one is already in flight.
func Admit(ctx context.Context, st store.Store, issue *models.Issue, requestedAgent, requestedBy string) (*models.Task, error) {
	now := time.Now()
	task := &models.Task{
		TaskID:         uuid.NewString(),
		IssueID:        issue.RecordID,
		State:          models.StateQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
		RequestedAgent: requestedAgent,
		RequestedBy:    requestedBy,
		Priority:       issue.Priority,
	}

	if err := st.CreateTask(ctx, task); err != nil {
		if errors.Is(err, store.ErrActiveTaskExists) {
			return existingActiveTask(ctx, st, issue.RecordID)
		}
		return nil, err
	}
	return task, nil
}

// existingActiveTask returns the issue's current non-terminal task.
func existingActiveTask(ctx context.Context, st store.Store, issueID string) (*models.Task, error) {
	tasks, err := st.TasksForIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if !t.State.IsTerminal() {
			return t, nil
		}
	}
	return nil, store.ErrActiveTaskExists
}
