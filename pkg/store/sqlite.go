package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

//go:embed migrations/sqlite
var sqliteMigrations embed.FS

// SQLiteStore is the Store backend for local, single-node, and test
// deployments: no external database required, same Store interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if absent) a SQLite database at path and
// applies the embedded schema. path may be ":memory:" for tests.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows only one writer at a time; a single shared connection
	// avoids SQLITE_BUSY under the worker pool's concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	schema, err := sqliteMigrations.ReadFile("migrations/sqlite/000001_init.sql")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading embedded schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying connection, for health checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Health reports this store's connection pool health.
func (s *SQLiteStore) Health(ctx context.Context) (*HealthStatus, error) {
	return Health(ctx, s.db)
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, podID string) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent,
		       requested_by, priority
		FROM tasks
		WHERE state = 'queued'
		ORDER BY priority = 'H' DESC, created_at ASC
		LIMIT 1`)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queueNoTasksAvailable()
		}
		return nil, fmt.Errorf("scanning claimed task: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = 'downloading', pod_id = ?, updated_at = ?, last_activity = ?
		WHERE task_id = ?`, podID, now, now, task.TaskID); err != nil {
		return nil, fmt.Errorf("marking task claimed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	task.State = models.StateDownloading
	return task, nil
}

func (s *SQLiteStore) Heartbeat(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET last_activity = ? WHERE task_id = ?`, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE state NOT IN ('queued', 'done', 'failed', 'cancelled')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active tasks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = ?, progress_percent = ?, message = ?, updated_at = ?, last_activity = ?
		WHERE task_id = ?`, string(state), percent, message, now, now, taskID)
	if err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) FinishTerminal(ctx context.Context, taskID string, state models.TaskState, message string, taskErr *models.TaskError) error {
	now := time.Now().UTC()
	var kind, msg sql.NullString
	if taskErr != nil {
		kind = sql.NullString{String: string(taskErr.Kind), Valid: true}
		msg = sql.NullString{String: taskErr.Message, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = ?, progress_percent = 100, message = ?, error_kind = ?,
		       error_message = ?, updated_at = ?, last_activity = ?
		WHERE task_id = ?`, string(state), message, kind, msg, now, now, taskID)
	if err != nil {
		return fmt.Errorf("finishing task: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) NonTerminalTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE state NOT IN ('done', 'failed', 'cancelled')`)
	if err != nil {
		return nil, fmt.Errorf("querying non-terminal tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) StaleActive(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks
		WHERE state NOT IN ('queued', 'done', 'failed', 'cancelled') AND last_activity < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) Requeue(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'queued', pod_id = '', updated_at = ?, last_activity = ?
		WHERE task_id = ?`, time.Now().UTC(), time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("requeuing task: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE record_id = ?`, issueID)
	return scanIssue(row)
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	links, err := marshalJSON(issue.ExternalLinks)
	if err != nil {
		return err
	}
	artifacts, err := marshalLogArtifacts(issue.LogArtifacts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issues (record_id, description, priority, device_serial, firmware,
			app_version, platform, category, source, external_links, created_by,
			created_at, log_artifacts, webhook_url, event_date_hint, soft_deleted)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		issue.RecordID, issue.Description, string(issue.Priority), issue.DeviceSerial,
		issue.Firmware, issue.AppVersion, issue.Platform, issue.Category, string(issue.Source),
		links, issue.CreatedBy, issue.CreatedAt, artifacts, issue.WebhookURL,
		issue.EventDateHint, issue.SoftDeleted)
	if err != nil {
		return fmt.Errorf("inserting issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error) {
	where, args := buildIssueFilter(filter, "?")
	limit, offset := paginationDefaults(filter)

	var total int
	countQuery := "SELECT count(*) FROM issues WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting issues: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, where)

	rows, err := s.db.QueryContext(ctx, query, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing issues: %w", err)
	}
	defer rows.Close()

	var out []*models.Issue
	for rows.Next() {
		issue, err := scanIssueRows(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, issue)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) SoftDeleteIssue(ctx context.Context, issueID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE issues SET soft_deleted = 1 WHERE record_id = ?`, issueID)
	if err != nil {
		return fmt.Errorf("soft-deleting issue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIssueNotFound
	}
	return nil
}

// FindIssueByExternalLink looks up an issue by substring match on its
// JSON-encoded external_links column; external links are few and short
// enough per issue that a LIKE scan is adequate without a join table.
func (s *SQLiteStore) FindIssueByExternalLink(ctx context.Context, link string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE external_links LIKE ?`, "%\""+link+"\"%")
	return scanIssue(row)
}

func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, issue_id, state, progress_percent, message, created_at,
			updated_at, requested_agent, requested_by, priority, last_activity)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		task.TaskID, task.IssueID, string(task.State), task.ProgressPercent, task.Message,
		task.CreatedAt, task.UpdatedAt, task.RequestedAgent, task.RequestedBy,
		string(task.Priority), task.CreatedAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrActiveTaskExists
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE task_id = ?`, taskID)
	return scanTask(row)
}

func (s *SQLiteStore) TasksForIssue(ctx context.Context, issueID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE issue_id = ? ORDER BY created_at DESC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for issue: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *SQLiteStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	evidence, err := marshalJSON(result.KeyEvidence)
	if err != nil {
		return err
	}
	steps, err := marshalJSON(result.NextSteps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO results (task_id, issue_id, problem_type, problem_type_en, root_cause,
			root_cause_en, confidence, confidence_reason, key_evidence, user_reply,
			user_reply_en, needs_engineer, requires_more_info, next_steps, fix_suggestion,
			matched_rule_id, agent_name, code_tree_unavailable, raw_transcript, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		result.TaskID, result.IssueID, result.ProblemType, result.ProblemTypeEn, result.RootCause,
		result.RootCauseEn, string(result.Confidence), result.ConfidenceReason, evidence,
		result.UserReply, result.UserReplyEn, result.NeedsEngineer, result.RequiresMoreInfo,
		steps, result.FixSuggestion, result.MatchedRuleID, result.AgentName,
		result.CodeTreeUnavailable, result.RawTranscript, result.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, issue_id, problem_type, problem_type_en, root_cause, root_cause_en,
		       confidence, confidence_reason, key_evidence, user_reply, user_reply_en,
		       needs_engineer, requires_more_info, next_steps, fix_suggestion, matched_rule_id,
		       agent_name, code_tree_unavailable, raw_transcript, created_at
		FROM results WHERE task_id = ?`, taskID)
	return scanResult(row)
}

func (s *SQLiteStore) CurrentResultForIssue(ctx context.Context, issueID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.task_id, r.issue_id, r.problem_type, r.problem_type_en, r.root_cause,
		       r.root_cause_en, r.confidence, r.confidence_reason, r.key_evidence, r.user_reply,
		       r.user_reply_en, r.needs_engineer, r.requires_more_info, r.next_steps,
		       r.fix_suggestion, r.matched_rule_id, r.agent_name, r.code_tree_unavailable,
		       r.raw_transcript, r.created_at
		FROM results r
		JOIN tasks t ON t.task_id = r.task_id
		WHERE t.issue_id = ? AND t.state = 'done'
		ORDER BY r.created_at DESC
		LIMIT 1`, issueID)
	return scanResult(row)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, taskID, issueID, kind, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events_log (task_id, issue_id, kind, detail, created_at)
		VALUES (?,?,?,?,?)`, taskID, issueID, kind, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
