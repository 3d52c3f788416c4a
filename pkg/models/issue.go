// Package models defines the domain entities shared across the triage
// orchestrator: Issue, Rule, Task, AnalysisResult, and ProgressEvent.
package models

import "time"

// IssuePriority is the triage priority band.
type IssuePriority string

const (
	PriorityHigh IssuePriority = "H"
	PriorityLow  IssuePriority = "L"
)

// IssueSource identifies which external producer created an Issue.
type IssueSource string

const (
	SourceChat        IssueSource = "chat"
	SourceSupportDesk  IssueSource = "support-desk"
	SourceTracker      IssueSource = "tracker"
	SourceAPI          IssueSource = "api"
	SourceLocal        IssueSource = "local"
)

// LogArtifact is a single log bundle attached to an Issue, either an
// embedded payload or an opaque fetch token resolved by an external
// producer-specific resolver.
type LogArtifact struct {
	Name        string `json:"name"`
	OpaqueToken string `json:"opaque_token,omitempty"`
	Payload     []byte `json:"-"` // embedded bytes, mutually exclusive with OpaqueToken
	Size        int64  `json:"size"`
}

// Issue is the ticket — the unit of analysis.
type Issue struct {
	RecordID      string        `json:"record_id"`
	Description   string        `json:"description"`
	Priority      IssuePriority `json:"priority"`
	DeviceSerial  string        `json:"device_serial,omitempty"`
	Firmware      string        `json:"firmware,omitempty"`
	AppVersion    string        `json:"app_version,omitempty"`
	Platform      string        `json:"platform,omitempty"`
	Category      string        `json:"category,omitempty"`
	Source        IssueSource   `json:"source"`
	ExternalLinks []string      `json:"external_links,omitempty"`
	CreatedBy     string        `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	LogArtifacts  []LogArtifact `json:"log_artifacts,omitempty"`
	WebhookURL    string        `json:"webhook_url,omitempty"`
	EventDateHint *time.Time    `json:"event_date_hint,omitempty"`
	SoftDeleted   bool          `json:"soft_deleted"`
}

// IssueFilter narrows a paginated Issue listing.
type IssueFilter struct {
	CreatedBy     string
	Platform      string
	Category      string
	State         string // task state of the issue's latest task, if any
	From, To      *time.Time
	IncludeDeleted bool
	Limit, Offset int
}
