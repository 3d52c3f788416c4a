package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPostgresStore starts a disposable PostgreSQL container, applies
// migrations against it, and returns a PostgresStore wired to it.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("triageorc_test"),
		postgres.WithUsername("triageorc"),
		postgres.WithPassword("triageorc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := Config{
		Host:         host,
		Port:         port.Int(),
		User:         "triageorc",
		Password:     "triageorc",
		Database:     "triageorc_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	s, err := NewPostgres(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_MigratesAndServesHealth(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	health, err := Health(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestPostgresStore_CreateIssueAndEnforceOneActiveTask(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	issue := sampleIssue("pg-issue-1")
	require.NoError(t, s.CreateIssue(ctx, issue))

	got, err := s.GetIssue(ctx, "pg-issue-1")
	require.NoError(t, err)
	assert.Equal(t, issue.Description, got.Description)

	require.NoError(t, s.CreateTask(ctx, sampleTask("pg-task-1", "pg-issue-1")))
	err = s.CreateTask(ctx, sampleTask("pg-task-2", "pg-issue-1"))
	assert.ErrorIs(t, err, ErrActiveTaskExists)
}
