// Package pipeline composes the Rule Engine, Log Materializer, Log
// Pre-extractor, Agent Runner, and Result Parser into the single
// queue.Executor that runs one Task end to end, persisting progress
// and the final outcome along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/agentrunner"
	"github.com/hwvendor/triage-orchestrator/pkg/metrics"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/preextract"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/resultparser"
	"github.com/hwvendor/triage-orchestrator/pkg/rules"
	"github.com/hwvendor/triage-orchestrator/pkg/workspace"
)

// IssueStore is the subset of pkg/store the pipeline needs to resolve a
// Task's owning Issue.
type IssueStore interface {
	GetIssue(ctx context.Context, issueID string) (*models.Issue, error)
}

// ResultStore persists a successful Task's AnalysisResult.
type ResultStore interface {
	SaveResult(ctx context.Context, result *models.AnalysisResult) error
}

// Notifier is the optional chat-notification surface (pkg/chatnotify).
// A nil Notifier silently disables notification without affecting the
// pipeline's own success/failure semantics.
type Notifier interface {
	NotifyTaskStart(ctx context.Context, issue *models.Issue, task *models.Task)
	NotifyTaskTerminal(ctx context.Context, issue *models.Issue, task *models.Task, result *models.AnalysisResult)
}

// WebhookCaller is the optional outbound per-task webhook callback
// surface. A nil WebhookCaller disables delivery.
type WebhookCaller interface {
	Deliver(ctx context.Context, webhookURL string, task *models.Task, result *models.AnalysisResult)
}

// Pipeline implements queue.Executor, owning the whole B(rule select) →
// C(materialize) → D(pre-extract) → E(agent run) → F(parse) sequence for
// one Task.
type Pipeline struct {
	issues       IssueStore
	results      ResultStore
	store        queue.TaskStore
	catalog      *rules.Catalog
	materializer *workspace.Materializer
	preExtract   *preextract.Extractor
	agents       *agentrunner.Factory
	pub          queue.ProgressPublisher
	notifier     Notifier
	webhook      WebhookCaller
	log          *slog.Logger
}

// New constructs a Pipeline. notifier, webhook, and pub may be nil.
func New(
	issues IssueStore,
	results ResultStore,
	store queue.TaskStore,
	catalog *rules.Catalog,
	materializer *workspace.Materializer,
	preExtract *preextract.Extractor,
	agents *agentrunner.Factory,
	pub queue.ProgressPublisher,
	notifier Notifier,
	webhook WebhookCaller,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		issues:       issues,
		results:      results,
		store:        store,
		catalog:      catalog,
		materializer: materializer,
		preExtract:   preExtract,
		agents:       agents,
		pub:          pub,
		notifier:     notifier,
		webhook:      webhook,
		log:          log.With("component", "pipeline"),
	}
}

// Execute runs one Task through every stage, writing progress
// progressively and returning its terminal outcome. Execute never
// returns nil; every error path is translated into a classified
// *models.TaskError per the Task failure-category contract.
func (p *Pipeline) Execute(ctx context.Context, task *models.Task) (result *queue.ExecutionResult) {
	log := p.log.With("task_id", task.TaskID, "issue_id", task.IssueID)

	execStart := time.Now()
	var ws *workspace.Workspace
	defer func() {
		p.finalizeWorkspace(ctx, result, ws)
		if result != nil {
			var kind models.TaskErrorKind
			if result.Error != nil {
				kind = result.Error.Kind
			}
			metrics.RecordTaskTerminal(result.State, kind, time.Since(execStart))
		}
	}()

	issue, err := p.issues.GetIssue(ctx, task.IssueID)
	if err != nil {
		return p.fail(ctx, task, models.ErrBadRequest, fmt.Sprintf("issue not found: %v", err))
	}

	if p.notifier != nil {
		p.notifier.NotifyTaskStart(ctx, issue, task)
	}

	// B — rule selection. Logically precedes materialization (needs_code
	// depends on the matched rule) and pre-extraction (patterns come from
	// the primary rule), even though it is not broken out as its own row
	// in the stage/percent table — it is folded into the early portion of
	// the "downloading" state.
	p.progress(ctx, task, models.StateDownloading, 2, "selecting rule")
	stageStart := time.Now()
	selection, err := rules.Select(p.catalog, issue.Description)
	metrics.ObserveStageDuration("rule_select", time.Since(stageStart))
	if err != nil {
		return p.fail(ctx, task, models.ErrRuleSelectFailure, err.Error())
	}
	primary := selection.Primary
	log = log.With("matched_rule_id", primary.ID)

	// C — materialize logs (and code tree, advisory).
	p.progress(ctx, task, models.StateDownloading, 5, "resolving artifacts")
	stageStart = time.Now()
	ws, err = p.materializer.Materialize(ctx, task.TaskID, issue, primary, func(artifactName, stage string) {
		p.progress(ctx, task, stageState(stage), stagePercent(stage), fmt.Sprintf("%s: %s", stage, artifactName))
	})
	metrics.ObserveStageDuration("materialize", time.Since(stageStart))
	if err != nil {
		return p.fail(ctx, task, materializeErrorKind(err), err.Error())
	}

	// D — pre-extract using the primary rule's declared patterns.
	p.progress(ctx, task, models.StateExtracting, 40, "pre-extracting log snippets")
	stageStart = time.Now()
	snippets, err := p.preExtract.Extract(ctx, ws.LogsDir, primary.PreExtract, issue.EventDateHint)
	metrics.ObserveStageDuration("pre_extract", time.Since(stageStart))
	if err != nil {
		return p.fail(ctx, task, models.ErrExtractFailure, err.Error())
	}

	// E — agent run.
	p.progress(ctx, task, models.StateAnalyzing, 50, "invoking agent")
	runner, err := p.agents.Select(ctx, task.RequestedAgent, primary.ID)
	if err != nil {
		return p.fail(ctx, task, models.ErrAgentUnavailable, err.Error())
	}
	prompt := buildPrompt(selection, snippets, ws.CodeUnavailable)
	stageStart = time.Now()
	runResult, err := runner.Run(ctx, prompt, ws.Root, agentOptions(primary))
	metrics.ObserveStageDuration("agent_run", time.Since(stageStart))
	if err != nil {
		return p.fail(ctx, task, runErrorKind(err), err.Error())
	}
	if werr := os.WriteFile(filepath.Join(ws.Root, "transcript.txt"), []byte(runResult.Transcript), 0o644); werr != nil {
		log.Warn("failed to persist transcript for post-mortem snapshot", "error", werr)
	}

	// F — parse the agent's structured result.
	p.progress(ctx, task, models.StateAnalyzing, 90, "parsing result")
	stageStart = time.Now()
	analysis, err := resultparser.Parse(runResult.Transcript, primary.ID, runResult.AgentName)
	metrics.ObserveStageDuration("parse", time.Since(stageStart))
	if err != nil {
		return p.fail(ctx, task, models.ErrParseFailure, err.Error())
	}
	analysis.TaskID = task.TaskID
	analysis.IssueID = task.IssueID
	analysis.CodeTreeUnavailable = ws.CodeUnavailable
	analysis.RawTranscript = runResult.Transcript
	analysis.CreatedAt = time.Now()

	// persist + notify
	p.progress(ctx, task, models.StateAnalyzing, 95, "persisting result")
	if err := p.results.SaveResult(ctx, analysis); err != nil {
		return p.fail(ctx, task, models.ErrParseFailure, fmt.Sprintf("persisting result: %v", err))
	}

	if p.notifier != nil {
		p.notifier.NotifyTaskTerminal(ctx, issue, task, analysis)
	}
	if p.webhook != nil && issue.WebhookURL != "" {
		p.webhook.Deliver(ctx, issue.WebhookURL, task, analysis)
	}

	p.progress(ctx, task, models.StateDone, 100, "done")
	log.Info("task completed")
	return &queue.ExecutionResult{State: models.StateDone, Message: "done"}
}

// progress writes a non-terminal progress update to the store and
// publishes it, logging but not failing the task on a store error — a
// failed progress write should never abort otherwise-successful work.
func (p *Pipeline) progress(ctx context.Context, task *models.Task, state models.TaskState, percent int, message string) {
	task.State = state
	task.ProgressPercent = percent
	task.Message = message
	if err := p.store.UpdateProgress(ctx, task.TaskID, state, percent, message); err != nil {
		p.log.Error("failed to record progress", "task_id", task.TaskID, "error", err)
	}
	if p.pub != nil {
		p.pub.Publish(models.ProgressEvent{
			TaskID:          task.TaskID,
			State:           state,
			ProgressPercent: percent,
			Message:         message,
			UpdatedAt:       time.Now(),
		})
	}
}

func (p *Pipeline) fail(ctx context.Context, task *models.Task, kind models.TaskErrorKind, message string) *queue.ExecutionResult {
	if errors.Is(ctx.Err(), context.Canceled) {
		p.log.Warn("task cancelled", "task_id", task.TaskID)
		return &queue.ExecutionResult{State: models.StateCancelled, Message: "task cancelled"}
	}
	p.log.Warn("task failed", "task_id", task.TaskID, "kind", kind, "message", message)
	return &queue.ExecutionResult{
		State:   models.StateFailed,
		Message: message,
		Error:   &models.TaskError{Kind: kind, Message: message},
	}
}

// finalizeWorkspace retains a post-mortem snapshot on failure (logs tree
// + transcript) and fully cleans up on success, per the workspace
// retention contract; deferred so every early-return path still cleans
// up its workspace. result is nil only if a panic unwound past every
// return statement, in which case the workspace is left untouched for
// inspection rather than guessed at.
func (p *Pipeline) finalizeWorkspace(ctx context.Context, result *queue.ExecutionResult, ws *workspace.Workspace) {
	if ws == nil || result == nil {
		return
	}
	if result.State == models.StateFailed || result.State == models.StateCancelled {
		if err := workspace.Snapshot(ws.Root); err != nil {
			p.log.Error("failed to snapshot workspace", "root", ws.Root, "error", err)
		}
		return
	}
	if err := workspace.Cleanup(ws.Root); err != nil {
		p.log.Error("failed to clean up workspace", "root", ws.Root, "error", err)
	}
}
