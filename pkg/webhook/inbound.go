// Package webhook ingests project-tracker events into Issues and Tasks,
// and delivers outbound per-task callbacks: a plain HTTP POST for
// API-submitted issues with a webhook_url, or a follow-up tracker
// comment for tracker-originated issues.
package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
	"github.com/hwvendor/triage-orchestrator/pkg/taskadmit"
)

// signatureHeader is the header carrying the inbound event's HMAC
// signature.
const signatureHeader = "X-Tracker-Signature"

// trackerScheme marks an Issue's WebhookURL as "post a follow-up comment
// to the tracker" rather than "POST a plain HTTP callback", letting the
// outbound Caller (outbound.go) special-case it.
const trackerScheme = "tracker://"

// Ingestor handles inbound tracker webhook events.
type Ingestor struct {
	store  store.Store
	cfg    *config.WebhooksConfig
	secret string
	log    *slog.Logger
}

// NewIngestor builds an Ingestor. cfg may be nil, which disables
// signature verification and mention-token matching (every event is
// accepted and ignored).
func NewIngestor(st store.Store, cfg *config.WebhooksConfig) *Ingestor {
	in := &Ingestor{store: st, cfg: cfg, log: slog.Default().With("component", "webhook-ingestor")}
	if cfg != nil && cfg.TrackerSecretEnv != "" {
		in.secret = os.Getenv(cfg.TrackerSecretEnv)
		if in.secret == "" {
			in.log.Warn("tracker secret env configured but unset; inbound signature verification disabled", "env", cfg.TrackerSecretEnv)
		}
	}
	return in
}

// Handler handles POST /webhooks/tracker.
func (in *Ingestor) Handler(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if in.secret != "" {
		if !verifySignature(in.secret, c.GetHeader(signatureHeader), body) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	event := parseTrackerEvent(body)
	mentionToken := ""
	if in.cfg != nil {
		mentionToken = in.cfg.MentionToken
	}
	if !mentionsToken(event.Text, mentionToken) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if event.TicketRef == "" || event.Text == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "missing ticket reference or text"})
		return
	}

	ctx := c.Request.Context()
	issue, err := in.store.FindIssueByExternalLink(ctx, event.TicketRef)
	if err != nil {
		if !errors.Is(err, store.ErrIssueNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		issue = &models.Issue{
			RecordID:      uuid.NewString(),
			Description:   event.Text,
			Priority:      models.PriorityLow,
			Source:        models.SourceTracker,
			ExternalLinks: nonEmptyStrings(event.TicketRef, event.TicketURL),
			CreatedBy:     event.Author,
			CreatedAt:     time.Now(),
			WebhookURL:    trackerScheme + event.TicketRef,
		}
		if err := in.store.CreateIssue(ctx, issue); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create issue"})
			return
		}
	}

	task, err := taskadmit.Admit(ctx, in.store, issue, "", event.Author)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to admit task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "issue_id": issue.RecordID, "task_id": task.TaskID})
}

func nonEmptyStrings(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
