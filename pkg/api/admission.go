package api

import (
	"context"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
	"github.com/hwvendor/triage-orchestrator/pkg/taskadmit"
)

// admitTask creates a new Task for issue, enforcing the
// at-most-one-non-terminal-task-per-issue invariant at the store layer.
// Per S3, a second admission attempt for an issue that already has a
// non-terminal task returns that task's existing ID unchanged rather than
// erroring.
func admitTask(ctx context.Context, st store.Store, issue *models.Issue, requestedAgent, requestedByUser string) (*models.Task, error) {
	return taskadmit.Admit(ctx, st, issue, requestedAgent, requestedByUser)
}
