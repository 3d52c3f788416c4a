package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var kind, msg sql.NullString
	err := row.Scan(&t.TaskID, &t.IssueID, &t.State, &t.ProgressPercent, &t.Message,
		&kind, &msg, &t.CreatedAt, &t.UpdatedAt, &t.RequestedAgent, &t.RequestedBy, &t.Priority)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	if kind.Valid {
		t.Error = &models.TaskError{Kind: models.TaskErrorKind(kind.String), Message: msg.String}
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue, err := scanIssueRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIssueNotFound
		}
	}
	return issue, err
}

func scanIssueRows(row rowScanner) (*models.Issue, error) {
	var issue models.Issue
	var links, artifacts string
	err := row.Scan(&issue.RecordID, &issue.Description, &issue.Priority, &issue.DeviceSerial,
		&issue.Firmware, &issue.AppVersion, &issue.Platform, &issue.Category, &issue.Source,
		&links, &issue.CreatedBy, &issue.CreatedAt, &artifacts, &issue.WebhookURL,
		&issue.EventDateHint, &issue.SoftDeleted)
	if err != nil {
		return nil, fmt.Errorf("scanning issue: %w", err)
	}
	if issue.ExternalLinks, err = unmarshalStrings(links); err != nil {
		return nil, err
	}
	if issue.LogArtifacts, err = unmarshalLogArtifacts(artifacts); err != nil {
		return nil, err
	}
	return &issue, nil
}

func scanResult(row rowScanner) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	var evidence, steps string
	err := row.Scan(&r.TaskID, &r.IssueID, &r.ProblemType, &r.ProblemTypeEn, &r.RootCause,
		&r.RootCauseEn, &r.Confidence, &r.ConfidenceReason, &evidence, &r.UserReply,
		&r.UserReplyEn, &r.NeedsEngineer, &r.RequiresMoreInfo, &steps, &r.FixSuggestion,
		&r.MatchedRuleID, &r.AgentName, &r.CodeTreeUnavailable, &r.RawTranscript, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("scanning result: %w", err)
	}
	if r.KeyEvidence, err = unmarshalStrings(evidence); err != nil {
		return nil, err
	}
	if r.NextSteps, err = unmarshalStrings(steps); err != nil {
		return nil, err
	}
	return &r, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func queueNoTasksAvailable() error {
	return queue.ErrNoTasksAvailable
}

// buildIssueFilter builds a WHERE clause (without the "WHERE" keyword) and
// its positional args for an IssueFilter. placeholder is "$" for
// PostgreSQL's $N style or "?" for SQLite's ? style.
func buildIssueFilter(f models.IssueFilter, placeholder string) (string, []any) {
	var clauses []string
	var args []any

	next := func(v any) string {
		args = append(args, v)
		if placeholder == "?" {
			return "?"
		}
		return "$" + strconv.Itoa(len(args))
	}

	if !f.IncludeDeleted {
		clauses = append(clauses, "soft_deleted = false")
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by = "+next(f.CreatedBy))
	}
	if f.Platform != "" {
		clauses = append(clauses, "platform = "+next(f.Platform))
	}
	if f.Category != "" {
		clauses = append(clauses, "category = "+next(f.Category))
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= "+next(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= "+next(*f.To))
	}
	if f.State != "" {
		// Issues have no state column: match on the issue's latest task.
		clauses = append(clauses, "(SELECT t.state FROM tasks t WHERE t.issue_id = issues.record_id ORDER BY t.created_at DESC LIMIT 1) = "+next(f.State))
	}

	if len(clauses) == 0 {
		return "true", args
	}
	return strings.Join(clauses, " AND "), args
}

func paginationDefaults(f models.IssueFilter) (limit, offset int) {
	limit = f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset = f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
