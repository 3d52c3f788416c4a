package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

//go:embed migrations/postgres
var postgresMigrations embed.FS

// PostgresStore is the production Store backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against cfg, applies pending
// migrations, and creates the full-text-search indexes the migrations
// don't express. Mirrors the connect-then-migrate-then-index sequencing
// used for the teacher's production database client.
func NewPostgres(ctx context.Context, cfg Config) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runPostgresMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := createGINIndexes(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating search indexes: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresFromDB wraps an already-open, already-migrated *sql.DB;
// useful for tests against a testcontainers-managed database.
func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runPostgresMigrations(db *sql.DB, dbName string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}

	// Close only the source; calling m.Close() would also close db through
	// the driver it wraps, which the caller still owns.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("closing migration source: %w", err)
	}
	return nil
}

// DB returns the underlying connection pool, for health checks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Health reports this store's connection pool health.
func (s *PostgresStore) Health(ctx context.Context) (*HealthStatus, error) {
	return Health(ctx, s.db)
}

func (s *PostgresStore) ClaimNext(ctx context.Context, podID string) (*models.Task, error) {
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
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queueNoTasksAvailable()
		}
		return nil, fmt.Errorf("scanning claimed task: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET state = 'downloading', pod_id = $1, updated_at = $2, last_activity = $2
		WHERE task_id = $3`, podID, now, task.TaskID); err != nil {
		return nil, fmt.Errorf("marking task claimed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	task.State = models.StateDownloading
	return task, nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET last_activity = $1 WHERE task_id = $2`, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("updating heartbeat: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *PostgresStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE state NOT IN ('queued', 'done', 'failed', 'cancelled')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active tasks: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = $1, progress_percent = $2, message = $3, updated_at = $4, last_activity = $4
		WHERE task_id = $5`, string(state), percent, message, now, taskID)
	if err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *PostgresStore) FinishTerminal(ctx context.Context, taskID string, state models.TaskState, message string, taskErr *models.TaskError) error {
	now := time.Now().UTC()
	var kind, msg sql.NullString
	if taskErr != nil {
		kind = sql.NullString{String: string(taskErr.Kind), Valid: true}
		msg = sql.NullString{String: taskErr.Message, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = $1, progress_percent = 100, message = $2, error_kind = $3,
		       error_message = $4, updated_at = $5, last_activity = $5
		WHERE task_id = $6`, string(state), message, kind, msg, now, taskID)
	if err != nil {
		return fmt.Errorf("finishing task: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *PostgresStore) NonTerminalTasks(ctx context.Context) ([]*models.Task, error) {
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

func (s *PostgresStore) StaleActive(ctx context.Context, cutoff time.Time) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks
		WHERE state NOT IN ('queued', 'done', 'failed', 'cancelled') AND last_activity < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PostgresStore) Requeue(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'queued', pod_id = '', updated_at = $1, last_activity = $1
		WHERE task_id = $2`, time.Now().UTC(), taskID)
	if err != nil {
		return fmt.Errorf("requeuing task: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE record_id = $1`, issueID)
	return scanIssue(row)
}

func (s *PostgresStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13::jsonb,$14,$15,$16)`,
		issue.RecordID, issue.Description, string(issue.Priority), issue.DeviceSerial,
		issue.Firmware, issue.AppVersion, issue.Platform, issue.Category, string(issue.Source),
		links, issue.CreatedBy, issue.CreatedAt, artifacts, issue.WebhookURL,
		issue.EventDateHint, issue.SoftDeleted)
	if err != nil {
		return fmt.Errorf("inserting issue: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error) {
	where, args := buildIssueFilter(filter, "$")
	limit, offset := paginationDefaults(filter)

	var total int
	countQuery := "SELECT count(*) FROM issues WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting issues: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *PostgresStore) SoftDeleteIssue(ctx context.Context, issueID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE issues SET soft_deleted = true WHERE record_id = $1`, issueID)
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

// FindIssueByExternalLink looks up an issue whose external_links jsonb
// array contains link, using the `@>` jsonb containment operator.
func (s *PostgresStore) FindIssueByExternalLink(ctx context.Context, link string) (*models.Issue, error) {
	linksJSON, err := marshalJSON([]string{link})
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, description, priority, device_serial, firmware, app_version,
		       platform, category, source, external_links, created_by, created_at,
		       log_artifacts, webhook_url, event_date_hint, soft_deleted
		FROM issues WHERE external_links @> $1::jsonb`, linksJSON)
	return scanIssue(row)
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, issue_id, state, progress_percent, message, created_at,
			updated_at, requested_agent, requested_by, priority, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$6)`,
		task.TaskID, task.IssueID, string(task.State), task.ProgressPercent, task.Message,
		task.CreatedAt, task.UpdatedAt, task.RequestedAgent, task.RequestedBy, string(task.Priority))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveTaskExists
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE task_id = $1`, taskID)
	return scanTask(row)
}

func (s *PostgresStore) TasksForIssue(ctx context.Context, issueID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, issue_id, state, progress_percent, message, error_kind,
		       error_message, created_at, updated_at, requested_agent, requested_by, priority
		FROM tasks WHERE issue_id = $1 ORDER BY created_at DESC`, issueID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for issue: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *PostgresStore) SaveResult(ctx context.Context, result *models.AnalysisResult) error {
	evidence, err := marshalJSON(result.KeyEvidence)
	if err != nil {
		return err
	}
	steps, err := marshalJSON(result.NextSteps)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (task_id, issue_id, problem_type, problem_type_en, root_cause,
			root_cause_en, confidence, confidence_reason, key_evidence, user_reply,
			user_reply_en, needs_engineer, requires_more_info, next_steps, fix_suggestion,
			matched_rule_id, agent_name, code_tree_unavailable, raw_transcript, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13,$14::jsonb,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (task_id) DO NOTHING`,
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

func (s *PostgresStore) GetResult(ctx context.Context, taskID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, issue_id, problem_type, problem_type_en, root_cause, root_cause_en,
		       confidence, confidence_reason, key_evidence, user_reply, user_reply_en,
		       needs_engineer, requires_more_info, next_steps, fix_suggestion, matched_rule_id,
		       agent_name, code_tree_unavailable, raw_transcript, created_at
		FROM results WHERE task_id = $1`, taskID)
	return scanResult(row)
}

func (s *PostgresStore) CurrentResultForIssue(ctx context.Context, issueID string) (*models.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.task_id, r.issue_id, r.problem_type, r.problem_type_en, r.root_cause,
		       r.root_cause_en, r.confidence, r.confidence_reason, r.key_evidence, r.user_reply,
		       r.user_reply_en, r.needs_engineer, r.requires_more_info, r.next_steps,
		       r.fix_suggestion, r.matched_rule_id, r.agent_name, r.code_tree_unavailable,
		       r.raw_transcript, r.created_at
		FROM results r
		JOIN tasks t ON t.task_id = r.task_id
		WHERE t.issue_id = $1 AND t.state = 'done'
		ORDER BY r.created_at DESC
		LIMIT 1`, issueID)
	return scanResult(row)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, taskID, issueID, kind, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events_log (task_id, issue_id, kind, detail, created_at)
		VALUES ($1,$2,$3,$4,$5)`, taskID, issueID, kind, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx reports unique-violation SQLSTATE 23505 in its error string when
	// surfaced through database/sql; avoids importing pgconn just to type-assert.
	return strings.Contains(err.Error(), "23505")
}
