package taskadmit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleIssue(id string) *models.Issue {
	return &models.Issue{
		RecordID:    id,
		Description: "app crashes on boot",
		Priority:    models.PriorityHigh,
		Source:      models.SourceAPI,
		CreatedAt:   time.Now(),
	}
}

func TestAdmit_FirstCallCreatesTask(t *testing.T) {
	st := newTestStore(t)
	issue := sampleIssue("iss-1")
	require.NoError(t, st.CreateIssue(context.Background(), issue))

	task, err := Admit(context.Background(), st, issue, "claude_code", "alice")
	require.NoError(t, err)
	assert.Equal(t, issue.RecordID, task.IssueID)
	assert.Equal(t, models.StateQueued, task.State)
}

func TestAdmit_SecondCallReturnsSameTask(t *testing.T) {
	st := newTestStore(t)
	issue := sampleIssue("iss-2")
	require.NoError(t, st.CreateIssue(context.Background(), issue))

	first, err := Admit(context.Background(), st, issue, "claude_code", "alice")
	require.NoError(t, err)

	second, err := Admit(context.Background(), st, issue, "claude_code", "bob")
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, second.TaskID, "second admission must not create a duplicate task")
}

func TestAdmit_NewTaskAllowedAfterPriorOneTerminal(t *testing.T) {
	st := newTestStore(t)
	issue := sampleIssue("iss-3")
	require.NoError(t, st.CreateIssue(context.Background(), issue))

	first, err := Admit(context.Background(), st, issue, "claude_code", "alice")
	require.NoError(t, err)
	require.NoError(t, st.FinishTerminal(context.Background(), first.TaskID, models.StateDone, "done", nil))

	second, err := Admit(context.Background(), st, issue, "claude_code", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}
