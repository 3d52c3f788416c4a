package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/agentrunner"
	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/preextract"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/rules"
	"github.com/hwvendor/triage-orchestrator/pkg/workspace"
)

const fallbackRule = `---
id: fallback
name: Fallback
version: 1
triggers:
  keywords: []
  priority: 0
pre_extract:
  - name: errors
    regex: "(?i)error"
---
## Fallback playbook

Analyze whatever logs are present.
`

const crashRule = `---
id: crash_loop
name: Crash Loop
version: 1
triggers:
  keywords:
    - crash
  priority: 10
pre_extract:
  - name: errors
    regex: "(?i)error"
---
## Crash loop playbook

Look for repeated process restarts.
`

func writeRules(t *testing.T, dir string, contents ...string) {
	t.Helper()
	for i, c := range contents {
		path := filepath.Join(dir, "rule"+string(rune('0'+i))+".md")
		require.NoError(t, os.WriteFile(path, []byte(c), 0o644))
	}
}

func newCatalog(t *testing.T, contents ...string) *rules.Catalog {
	t.Helper()
	dir := t.TempDir()
	writeRules(t, dir, contents...)
	cat := rules.NewCatalog(dir, nil)
	require.NoError(t, cat.Reload())
	return cat
}

func newMaterializer(t *testing.T) *workspace.Materializer {
	t.Helper()
	cfg := &config.WorkspaceConfig{
		Root:                  t.TempDir(),
		MaxEntrySizeBytes:     1 << 20,
		MaxTotalSizeBytes:     1 << 20,
		ArtifactFetchTimeout:  5 * time.Second,
		DecryptExtractTimeout: 5 * time.Second,
	}
	return workspace.New(cfg, nil, nil, nil, nil)
}

// echoRunnerFactory builds an agentrunner.Factory whose sole provider
// shells out to /bin/echo: Available() runs "echo --version" (exit 0
// regardless of args), and Run() prints transcript verbatim as a single
// argv, exercising the real subprocess path end to end without requiring
// an actual LLM CLI on the test machine.
func echoRunnerFactory(t *testing.T, transcript string, timeout time.Duration) *agentrunner.Factory {
	t.Helper()
	routing := &config.AgentRoutingConfig{
		Providers: map[string]*config.AgentProviderConfig{
			"echo_agent": {
				Name:    "echo_agent",
				Command: "echo",
				Args:    []string{transcript},
				Enabled: true,
				Timeout: timeout,
			},
		},
		DefaultProvider: "echo_agent",
		FallbackOrder:   []string{"echo_agent"},
	}
	return agentrunner.NewFactory(config.NewAgentRegistry(routing), nil)
}

// failingRunnerFactory builds a provider whose availability probe
// ("$script --version") succeeds but whose actual run ("$script", no
// args) exits nonzero, so Factory.Select hands back a Runner and the
// failure surfaces from Run as ErrAgentCrash rather than being masked by
// an ErrAgentUnavailable from a failed probe.
func failingRunnerFactory(t *testing.T) *agentrunner.Factory {
	t.Helper()
	script := filepath.Join(t.TempDir(), "broken-agent.sh")
	body := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo v1; exit 0; fi\necho boom 1>&2\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	routing := &config.AgentRoutingConfig{
		Providers: map[string]*config.AgentProviderConfig{
			"broken_agent": {
				Name:    "broken_agent",
				Command: script,
				Enabled: true,
				Timeout: 5 * time.Second,
			},
		},
		DefaultProvider: "broken_agent",
		FallbackOrder:   []string{"broken_agent"},
	}
	return agentrunner.NewFactory(config.NewAgentRegistry(routing), nil)
}

type fakeIssueStore struct {
	issue *models.Issue
	err   error
}

func (s *fakeIssueStore) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	return s.issue, s.err
}

type fakeResultStore struct {
	saved *models.AnalysisResult
}

func (s *fakeResultStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	s.saved = result
	return nil
}

// fakeTaskStore implements queue.TaskStore with no-op stubs for every
// method Pipeline does not exercise directly (claiming and sweeping are
// the worker pool's responsibility, not the pipeline's).
type fakeTaskStore struct{}

func (s *fakeTaskStore) ClaimNext(ctx context.Context, podID string) (*models.Task, error) {
	return nil, queue.ErrNoTasksAvailable
}

func (s *fakeTaskStore) Heartbeat(ctx context.Context, taskID string) error { return nil }

func (s *fakeTaskStore) CountActive(ctx context.Context) (int, error) { return 0, nil }

func (s *fakeTaskStore) UpdateProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error {
	return nil
}

func (s *fakeTaskStore) FinishTerminal(ctx context.Context, taskID string, state models.TaskState, message string, taskErr *models.TaskError) error {
	return nil
}

func (s *fakeTaskStore) NonTerminalTasks(ctx context.Context) ([]*models.Task, error) {
	return nil, nil
}

func (s *fakeTaskStore) StaleActive(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	return nil, nil
}

func (s *fakeTaskStore) Requeue(ctx context.Context, taskID string) error { return nil }

type fakeNotifier struct {
	starts    int
	terminals int
}

func (n *fakeNotifier) NotifyTaskStart(ctx context.Context, issue *models.Issue, task *models.Task) {
	n.starts++
}

func (n *fakeNotifier) NotifyTaskTerminal(ctx context.Context, issue *models.Issue, task *models.Task, result *models.AnalysisResult) {
	n.terminals++
}

type fakeWebhookCaller struct {
	delivered int
}

func (w *fakeWebhookCaller) Deliver(ctx context.Context, webhookURL string, task *models.Task, result *models.AnalysisResult) {
	w.delivered++
}

func newPipeline(t *testing.T, catalog *rules.Catalog, agents *agentrunner.Factory, issues *fakeIssueStore, results *fakeResultStore) (*Pipeline, *fakeNotifier, *fakeWebhookCaller) {
	t.Helper()
	notifier := &fakeNotifier{}
	webhook := &fakeWebhookCaller{}
	p := New(
		issues,
		results,
		&fakeTaskStore{},
		catalog,
		newMaterializer(t),
		preextract.New(&config.PreExtractConfig{MaxLinesPerPattern: 50, PerPatternDeadline: 5 * time.Second}, nil),
		agents,
		nil,
		notifier,
		webhook,
		nil,
	)
	return p, notifier, webhook
}

func baseIssue() *models.Issue {
	return &models.Issue{
		RecordID:    "issue-1",
		Description: "device stuck in a crash loop after update",
		Priority:    models.PriorityHigh,
		Source:      models.SourceAPI,
		LogArtifacts: []models.LogArtifact{
			{Name: "app.log", Payload: []byte("2024-01-01T00:00:00 ERROR something broke\n")},
		},
	}
}

func TestExecuteRunsFullChainAndSavesResult(t *testing.T) {
	catalog := newCatalog(t, fallbackRule, crashRule)
	transcript := `{"problem_type":"crash_loop","root_cause":"bad config","confidence":"high"}`
	agents := echoRunnerFactory(t, transcript, 5*time.Second)

	issue := baseIssue()
	issues := &fakeIssueStore{issue: issue}
	results := &fakeResultStore{}
	p, notifier, webhook := newPipeline(t, catalog, agents, issues, results)

	issue.WebhookURL = "https://example.test/hook"
	task := &models.Task{TaskID: "t-1", IssueID: "issue-1"}

	res := p.Execute(context.Background(), task)
	require.NotNil(t, res)
	assert.Equal(t, models.StateDone, res.State)
	require.NotNil(t, results.saved)
	assert.Equal(t, "crash_loop", results.saved.MatchedRuleID)
	assert.Equal(t, "t-1", results.saved.TaskID)
	assert.Equal(t, 1, notifier.starts)
	assert.Equal(t, 1, notifier.terminals)
	assert.Equal(t, 1, webhook.delivered)
}

func TestExecuteFailsWithBadRequestWhenIssueMissing(t *testing.T) {
	catalog := newCatalog(t, fallbackRule)
	agents := echoRunnerFactory(t, "{}", 5*time.Second)
	issues := &fakeIssueStore{err: assertErr("issue not found")}
	results := &fakeResultStore{}
	p, _, _ := newPipeline(t, catalog, agents, issues, results)

	res := p.Execute(context.Background(), &models.Task{TaskID: "t-2", IssueID: "missing"})
	require.NotNil(t, res)
	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrBadRequest, res.Error.Kind)
}

func TestExecuteFailsWithArtifactFetchWhenArtifactUnresolvable(t *testing.T) {
	catalog := newCatalog(t, fallbackRule)
	agents := echoRunnerFactory(t, "{}", 5*time.Second)

	issue := baseIssue()
	issue.LogArtifacts = []models.LogArtifact{{Name: "remote.log", OpaqueToken: "tok-1"}}
	issues := &fakeIssueStore{issue: issue}
	results := &fakeResultStore{}
	p, _, _ := newPipeline(t, catalog, agents, issues, results)

	res := p.Execute(context.Background(), &models.Task{TaskID: "t-3", IssueID: "issue-1"})
	require.NotNil(t, res)
	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrArtifactFetch, res.Error.Kind)
}

func TestExecuteFailsWithAgentCrashOnNonzeroExit(t *testing.T) {
	catalog := newCatalog(t, fallbackRule)
	agents := failingRunnerFactory(t)

	issue := baseIssue()
	issues := &fakeIssueStore{issue: issue}
	results := &fakeResultStore{}
	p, _, _ := newPipeline(t, catalog, agents, issues, results)

	res := p.Execute(context.Background(), &models.Task{TaskID: "t-4", IssueID: "issue-1"})
	require.NotNil(t, res)
	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrAgentCrash, res.Error.Kind)
}

func TestExecuteFailsWithParseFailureOnUnstructuredTranscript(t *testing.T) {
	catalog := newCatalog(t, fallbackRule)
	agents := echoRunnerFactory(t, "no structured result here", 5*time.Second)

	issue := baseIssue()
	issues := &fakeIssueStore{issue: issue}
	results := &fakeResultStore{}
	p, _, _ := newPipeline(t, catalog, agents, issues, results)

	res := p.Execute(context.Background(), &models.Task{TaskID: "t-5", IssueID: "issue-1"})
	require.NotNil(t, res)
	assert.Equal(t, models.StateFailed, res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrParseFailure, res.Error.Kind)
}

func TestFinalizeWorkspaceSnapshotsOnFailureAndCleansUpOnSuccess(t *testing.T) {
	ws := &workspace.Workspace{Root: t.TempDir(), LogsDir: ""}
	require.NoError(t, os.MkdirAll(filepath.Join(ws.Root, "logs"), 0o755))

	p, _, _ := newPipeline(t, newCatalog(t, fallbackRule), echoRunnerFactory(t, "{}", time.Second), &fakeIssueStore{}, &fakeResultStore{})

	p.finalizeWorkspace(context.Background(), &queue.ExecutionResult{State: models.StateFailed}, ws)
	_, err := os.Stat(ws.Root)
	assert.NoError(t, err, "a failed task's workspace root should still exist as a snapshot")

	ws2 := &workspace.Workspace{Root: t.TempDir()}
	require.NoError(t, os.MkdirAll(filepath.Join(ws2.Root, "logs"), 0o755))
	p.finalizeWorkspace(context.Background(), &queue.ExecutionResult{State: models.StateDone}, ws2)
	_, err = os.Stat(ws2.Root)
	assert.True(t, os.IsNotExist(err), "a successful task's workspace should be fully cleaned up")
}

func TestExecuteReturnsCancelledStateWhenContextIsCancelled(t *testing.T) {
	catalog := newCatalog(t, fallbackRule)
	agents := echoRunnerFactory(t, "{}", 5*time.Second)
	issues := &fakeIssueStore{err: assertErr("issue not found")}
	results := &fakeResultStore{}
	p, _, _ := newPipeline(t, catalog, agents, issues, results)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Execute(ctx, &models.Task{TaskID: "t-6", IssueID: "issue-1"})
	require.NotNil(t, res)
	assert.Equal(t, models.StateCancelled, res.State)
	assert.Nil(t, res.Error, "a cancelled task carries no error, per the data model's state=failed-only error invariant")
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
