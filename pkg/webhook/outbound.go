package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// deliverTimeout bounds a single outbound callback attempt.
const deliverTimeout = 10 * time.Second

// calloutPayload is the body POSTed to an Issue's webhook_url on Task
// completion.
type calloutPayload struct {
	TaskID string                 `json:"task_id"`
	Status models.TaskState       `json:"status"`
	Result *models.AnalysisResult `json:"result,omitempty"`
	Error  *models.TaskError      `json:"error,omitempty"`
}

// Caller implements pkg/pipeline.WebhookCaller: it delivers a terminal
// Task's outcome either as a plain HTTP POST (for API-submitted issues)
// or as a follow-up tracker comment (for tracker-originated issues,
// recognized by the trackerScheme-prefixed WebhookURL set by Ingestor).
//
// Non-2xx responses, and delivery errors, are logged and not retried:
// this is explicitly a best-effort notification, not a reliable queue.
type Caller struct {
	http    *http.Client
	tracker *trackerClient
	log     *slog.Logger
}

// NewCaller builds a Caller. cfg may be nil, which disables posting
// follow-up tracker comments (plain webhook_url callbacks still work).
func NewCaller(cfg *config.WebhooksConfig) *Caller {
	c := &Caller{
		http: &http.Client{Timeout: deliverTimeout},
		log:  slog.Default().With("component", "webhook-caller"),
	}
	if cfg != nil && cfg.TrackerAPIURL != "" {
		c.tracker = newTrackerClient(cfg)
	}
	return c
}

// Deliver posts the Task's terminal outcome to webhookURL.
func (c *Caller) Deliver(ctx context.Context, webhookURL string, task *models.Task, result *models.AnalysisResult) {
	if strings.HasPrefix(webhookURL, trackerScheme) {
		ref := strings.TrimPrefix(webhookURL, trackerScheme)
		c.deliverTrackerComment(ctx, ref, task, result)
		return
	}
	c.deliverHTTP(ctx, webhookURL, task, result)
}

func (c *Caller) deliverHTTP(ctx context.Context, webhookURL string, task *models.Task, result *models.AnalysisResult) {
	payload := calloutPayload{TaskID: task.TaskID, Status: task.State, Result: result, Error: task.Error}
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Error("failed to marshal webhook payload", "task_id", task.TaskID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		c.log.Error("failed to build webhook request", "task_id", task.TaskID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("webhook delivery failed", "task_id", task.TaskID, "url", webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("webhook delivery returned non-2xx", "task_id", task.TaskID, "url", webhookURL, "status", resp.StatusCode)
	}
}

func (c *Caller) deliverTrackerComment(ctx context.Context, ticketRef string, task *models.Task, result *models.AnalysisResult) {
	if c.tracker == nil {
		return
	}
	comment := summarizeForTracker(task, result)
	if err := c.tracker.postComment(ctx, ticketRef, comment); err != nil {
		c.log.Warn("failed to post follow-up tracker comment", "task_id", task.TaskID, "ticket", ticketRef, "error", err)
	}
}

func summarizeForTracker(task *models.Task, result *models.AnalysisResult) string {
	if task.State == models.StateDone && result != nil {
		return fmt.Sprintf("Triage complete.\n\nRoot cause: %s\n\nSuggested reply:\n%s", result.RootCause, result.UserReply)
	}
	if task.Error != nil {
		return fmt.Sprintf("Triage %s: %s", task.State, task.Error.Message)
	}
	return fmt.Sprintf("Triage %s.", task.State)
}

// trackerClient posts follow-up comments to the issue tracker's REST API.
type trackerClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newTrackerClient(cfg *config.WebhooksConfig) *trackerClient {
	return &trackerClient{
		baseURL: strings.TrimSuffix(cfg.TrackerAPIURL, "/"),
		token:   os.Getenv(cfg.TrackerTokenEnv),
		http:    &http.Client{Timeout: deliverTimeout},
	}
}

func (t *trackerClient) postComment(ctx context.Context, ticketRef, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/issue/%s/comment", t.baseURL, ticketRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracker comment post returned status %d", resp.StatusCode)
	}
	return nil
}
