package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleIssue(id string) *models.Issue {
	return &models.Issue{
		RecordID:    id,
		Description: "app crashes on boot after update",
		Priority:    models.PriorityHigh,
		Platform:    "android",
		Source:      models.SourceSupportDesk,
		CreatedBy:   "alice",
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LogArtifacts: []models.LogArtifact{
			{Name: "bugreport.zip", Payload: []byte("fake-zip-bytes"), Size: 14},
		},
		ExternalLinks: []string{"https://tracker.example/TICKET-1"},
	}
}

func sampleTask(id, issueID string) *models.Task {
	now := time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC)
	return &models.Task{
		TaskID:    id,
		IssueID:   issueID,
		State:     models.StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Priority:  models.PriorityHigh,
	}
}

func TestCreateAndGetIssue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	issue := sampleIssue("issue-1")
	require.NoError(t, s.CreateIssue(ctx, issue))

	got, err := s.GetIssue(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, issue.Description, got.Description)
	assert.Equal(t, issue.Platform, got.Platform)
	assert.Equal(t, []string{"https://tracker.example/TICKET-1"}, got.ExternalLinks)
	require.Len(t, got.LogArtifacts, 1)
	assert.Equal(t, "bugreport.zip", got.LogArtifacts[0].Name)
	assert.Equal(t, []byte("fake-zip-bytes"), got.LogArtifacts[0].Payload)
}

func TestGetIssueNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetIssue(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrIssueNotFound)
}

func TestCreateTaskEnforcesAtMostOneActivePerIssue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))

	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))

	err := s.CreateTask(ctx, sampleTask("task-2", "issue-1"))
	assert.ErrorIs(t, err, ErrActiveTaskExists)
}

func TestCreateTaskAllowsNewTaskAfterPriorTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))
	require.NoError(t, s.FinishTerminal(ctx, "task-1", models.StateDone, "ok", nil))

	err := s.CreateTask(ctx, sampleTask("task-2", "issue-1"))
	assert.NoError(t, err)
}

func TestClaimNextOrdersHighPriorityFirstThenFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-low")))
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-high")))

	low := sampleTask("task-low", "issue-low")
	low.Priority = models.PriorityLow
	low.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateTask(ctx, low))

	high := sampleTask("task-high", "issue-high")
	high.Priority = models.PriorityHigh
	high.CreatedAt = time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
	require.NoError(t, s.CreateTask(ctx, high))

	claimed, err := s.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)
	assert.Equal(t, "task-high", claimed.TaskID, "high priority must claim before an earlier-created low priority task")
	assert.Equal(t, models.StateDownloading, claimed.State)
}

func TestClaimNextNoTasksAvailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ClaimNext(context.Background(), "pod-1")
	assert.ErrorIs(t, err, queue.ErrNoTasksAvailable)
}

func TestUpdateProgressAndFinishTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))

	require.NoError(t, s.UpdateProgress(ctx, "task-1", models.StateAnalyzing, 80, "running agent"))
	task, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAnalyzing, task.State)
	assert.Equal(t, 80, task.ProgressPercent)

	taskErr := &models.TaskError{Kind: models.ErrAgentTimeout, Message: "agent exceeded 5m"}
	require.NoError(t, s.FinishTerminal(ctx, "task-1", models.StateFailed, "timed out", taskErr))

	task, err = s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, models.ErrAgentTimeout, task.Error.Kind)
}

func TestStaleActiveAndRequeue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))
	_, err := s.ClaimNext(ctx, "pod-1")
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	stale, err := s.StaleActive(ctx, future)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "task-1", stale[0].TaskID)

	require.NoError(t, s.Requeue(ctx, "task-1"))
	task, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateQueued, task.State)
}

func TestSaveAndGetResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))
	require.NoError(t, s.FinishTerminal(ctx, "task-1", models.StateDone, "analysis complete", nil))

	result := &models.AnalysisResult{
		TaskID:      "task-1",
		IssueID:     "issue-1",
		ProblemType: "crash_loop",
		RootCause:   "bad config value",
		Confidence:  models.ConfidenceHigh,
		KeyEvidence: []string{"line 42: panic", "line 43: recovered"},
		NextSteps:   []string{"roll back config"},
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveResult(ctx, result))

	got, err := s.GetResult(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "crash_loop", got.ProblemType)
	assert.Equal(t, []string{"line 42: panic", "line 43: recovered"}, got.KeyEvidence)

	current, err := s.CurrentResultForIssue(ctx, "issue-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", current.TaskID)
}

func TestGetResultNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetResult(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestSoftDeleteIssueHidesFromDefaultListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.SoftDeleteIssue(ctx, "issue-1"))

	issues, total, err := s.ListIssues(ctx, models.IssueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, issues)

	issues, total, err = s.ListIssues(ctx, models.IssueFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, issues, 1)
	assert.True(t, issues[0].SoftDeleted)
}

func TestListIssuesFiltersAndPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, platform := range []string{"android", "android", "ios"} {
		issue := sampleIssue(fmtID(i))
		issue.Platform = platform
		issue.CreatedAt = time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)
		require.NoError(t, s.CreateIssue(ctx, issue))
	}

	issues, total, err := s.ListIssues(ctx, models.IssueFilter{Platform: "android"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, issues, 2)
	// Most recently created first.
	assert.Equal(t, fmtID(1), issues[0].RecordID)

	issues, total, err = s.ListIssues(ctx, models.IssueFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, issues, 1)
}

func fmtID(i int) string {
	return "issue-" + string(rune('a'+i))
}

func TestRecordEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateIssue(ctx, sampleIssue("issue-1")))
	require.NoError(t, s.CreateTask(ctx, sampleTask("task-1", "issue-1")))
	assert.NoError(t, s.RecordEvent(ctx, "task-1", "issue-1", "admitted", "created via API"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Password: "x", MaxOpenConns: 10, MaxIdleConns: 5},
			wantErr: false,
		},
		{
			name:    "missing password",
			cfg:     Config{MaxOpenConns: 10, MaxIdleConns: 5},
			wantErr: true,
		},
		{
			name:    "idle exceeds open",
			cfg:     Config{Password: "x", MaxOpenConns: 5, MaxIdleConns: 10},
			wantErr: true,
		},
		{
			name:    "zero open conns",
			cfg:     Config{Password: "x", MaxOpenConns: 0, MaxIdleConns: 0},
			wantErr: true,
		},
		{
			name:    "negative idle conns",
			cfg:     Config{Password: "x", MaxOpenConns: 10, MaxIdleConns: -1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestStore(t)
	health, err := Health(context.Background(), s.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestRequireRowsAffectedOnMissingTask(t *testing.T) {
	s := newTestStore(t)
	err := s.Heartbeat(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}
