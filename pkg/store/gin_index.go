package store

import (
	"context"
	"database/sql"
	"fmt"
)

// createGINIndexes adds full-text-search indexes not expressed by the
// migration's plain CREATE TABLE statements. Run once after migrating,
// against the shared *sql.DB rather than an ORM-owned driver.
func createGINIndexes(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS issues_description_fts_idx
			ON issues USING gin(to_tsvector('english', description))`,
		`CREATE INDEX IF NOT EXISTS results_root_cause_fts_idx
			ON results USING gin(to_tsvector('english', root_cause))`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating GIN index: %w", err)
		}
	}
	return nil
}
