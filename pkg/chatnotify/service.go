package chatnotify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// Service delivers task-lifecycle and escalation notifications to a
// corporate chat channel. Nil-safe: every method is a no-op when the
// service itself is nil, which lets callers wire an unconfigured
// Service in unconditionally instead of branching on configuration.
//
// Service implements pkg/pipeline.Notifier and pkg/api.Escalator.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// New builds a Service from configuration. Returns nil (a valid,
// inert value) if chat notification is disabled or its token
// environment variable is unset, so callers can wire the result
// straight into pipeline.New / api.Server.SetEscalator without a
// conditional.
func New(cfg *config.ChatNotifyConfig) *Service {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" || cfg.Channel == "" {
		slog.Default().Warn("chat notification enabled but token or channel missing; disabling", "token_env", cfg.TokenEnv)
		return nil
	}
	return &Service{
		client:       NewClient(token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "chatnotify-service"),
	}
}

// NewWithClient builds a Service around a pre-built Client, for testing
// against a mock chat API server.
func NewWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "chatnotify-service"),
	}
}

// NotifyTaskStart sends a "processing started" notification. Fail-open:
// errors are logged, never returned — a notification failure must never
// fail the Task it is describing.
func (s *Service) NotifyTaskStart(ctx context.Context, issue *models.Issue, task *models.Task) {
	if s == nil {
		return
	}
	blocks := BuildTaskStartedMessage(issue.RecordID, task.TaskID, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("failed to send task-start notification", "task_id", task.TaskID, "error", err)
	}
}

// NotifyTaskTerminal sends a terminal status notification, threaded onto
// the start notification when one can be found by fingerprint. Fail-open.
func (s *Service) NotifyTaskTerminal(ctx context.Context, issue *models.Issue, task *models.Task, result *models.AnalysisResult) {
	if s == nil {
		return
	}
	threadTS, err := s.client.FindMessageByFingerprint(ctx, fingerprint(issue.RecordID))
	if err != nil {
		s.logger.Warn("failed to find chat thread for issue", "issue_id", issue.RecordID, "error", err)
	}
	blocks := BuildTaskTerminalMessage(issue.RecordID, task, result, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send terminal notification", "task_id", task.TaskID, "state", task.State, "error", err)
	}
}

// Escalate posts a manual escalation request for an Issue, threaded onto
// its existing notification when one can be found. sent is false (no
// error) when the service is unconfigured, letting callers distinguish
// "disabled" from "failed" without surfacing an error to HTTP clients.
func (s *Service) Escalate(ctx context.Context, issueID, reason string) (bool, error) {
	if s == nil {
		return false, nil
	}
	threadTS, err := s.client.FindMessageByFingerprint(ctx, fingerprint(issueID))
	if err != nil {
		s.logger.Warn("failed to find chat thread for issue", "issue_id", issueID, "error", err)
	}
	blocks := BuildEscalationMessage(issueID, reason, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		return false, err
	}
	return true, nil
}
