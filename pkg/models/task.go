package models

import "time"

// TaskState is a Task's position in the pipeline state machine.
type TaskState string

const (
	StateQueued      TaskState = "queued"
	StateDownloading TaskState = "downloading"
	StateDecrypting  TaskState = "decrypting"
	StateExtracting  TaskState = "extracting"
	StateAnalyzing   TaskState = "analyzing"
	StateDone        TaskState = "done"
	StateFailed      TaskState = "failed"
	StateCancelled   TaskState = "cancelled"
)

// stateOrder gives the non-terminal states' position in the required
// monotone progression; terminal states are not ordered against each
// other because they are absorbing, not sequential.
var stateOrder = map[TaskState]int{
	StateQueued:      0,
	StateDownloading: 1,
	StateDecrypting:  2,
	StateExtracting:  3,
	StateAnalyzing:   4,
}

// IsTerminal reports whether s is one of the absorbing terminal states.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next is legal under
// the monotone state-ordering invariant.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	if s.IsTerminal() {
		return false // terminal states are absorbing
	}
	if next.IsTerminal() {
		return true
	}
	cur, ok1 := stateOrder[s]
	nxt, ok2 := stateOrder[next]
	return ok1 && ok2 && nxt >= cur
}

// TaskErrorKind is the closed taxonomy of terminal failure categories.
type TaskErrorKind string

const (
	ErrBadRequest        TaskErrorKind = "BadRequest"
	ErrArtifactFetch     TaskErrorKind = "ArtifactFetch"
	ErrDecryptFailure    TaskErrorKind = "DecryptFailure"
	ErrExtractFailure    TaskErrorKind = "ExtractFailure"
	ErrRuleSelectFailure TaskErrorKind = "RuleSelectFailure"
	ErrAgentUnavailable  TaskErrorKind = "AgentUnavailable"
	ErrAgentTimeout      TaskErrorKind = "AgentTimeout"
	ErrAgentCrash        TaskErrorKind = "AgentCrash"
	ErrParseFailure      TaskErrorKind = "ParseFailure"
	ErrCancelled         TaskErrorKind = "Cancelled"
	ErrServerRestart     TaskErrorKind = "ServerRestart"
)

// Retryable reports the operator-visible retry hint for each error kind.
// "Manual" and "No" both mean no automatic retry; the distinction is
// purely informational for operators.
func (k TaskErrorKind) Retryable() string {
	switch k {
	case ErrBadRequest, ErrRuleSelectFailure:
		return "No"
	case ErrCancelled:
		return "N/A"
	default:
		return "Manual"
	}
}

// TaskError is the single category-plus-message failure surfaced to users.
type TaskError struct {
	Kind    TaskErrorKind `json:"kind"`
	Message string        `json:"message"`
}

func (e *TaskError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Task is one analysis attempt over an Issue.
type Task struct {
	TaskID          string     `json:"task_id"`
	IssueID         string     `json:"issue_id"`
	State           TaskState  `json:"state"`
	ProgressPercent int        `json:"progress_percent"`
	Message         string     `json:"message"`
	Error           *TaskError `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	RequestedAgent  string     `json:"requested_agent,omitempty"`
	RequestedBy     string     `json:"requested_by,omitempty"`

	// Priority mirrors the Issue's priority at admission time, used for
	// dequeue ordering without a join.
	Priority IssuePriority `json:"priority"`
}

// ProgressEvent is a snapshot of a Task's changing fields, delivered
// best-effort to subscribers.
type ProgressEvent struct {
	TaskID          string    `json:"task_id"`
	State           TaskState `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	Message         string    `json:"message"`
	UpdatedAt       time.Time `json:"updated_at"`
}
