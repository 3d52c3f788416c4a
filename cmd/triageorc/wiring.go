package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

// loadConfig loads the .env file (if present) from configDir, then
// initializes and validates configuration from triage.yaml.
func loadConfig(ctx context.Context) (*config.Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment variables", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("initializing configuration: %w", err)
	}
	return cfg, nil
}

// buildStore constructs the Store implementation named by
// cfg.System.Store.Driver, running embedded migrations as a side effect
// of construction.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.System.Store.Driver {
	case "sqlite":
		path := cfg.System.Store.SQLitePath
		if path == "" {
			path = "triageorc.db"
		}
		return store.NewSQLite(ctx, path)
	case "postgres", "":
		pg := cfg.System.Store.Postgres
		storeCfg := store.Config{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        pg.Database,
			SSLMode:         pg.SSLMode,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.ConnMaxLifetime,
			ConnMaxIdleTime: pg.ConnMaxIdleTime,
		}
		return store.NewPostgres(ctx, storeCfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.System.Store.Driver)
	}
}

// httpArtifactResolver is the composition root's default
// workspace.ArtifactResolver: it treats every LogArtifact's OpaqueToken
// as a fully-qualified URL and fetches it with a plain HTTP GET. Real
// deployments with a proprietary artifact store replace this with their
// own resolver; nothing in pkg/workspace assumes this shape.
type httpArtifactResolver struct {
	client *http.Client
}

func newHTTPArtifactResolver() *httpArtifactResolver {
	return &httpArtifactResolver{client: &http.Client{Timeout: 30 * time.Second}}
}

func (r *httpArtifactResolver) Resolve(ctx context.Context, artifact models.LogArtifact) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.OpaqueToken, nil)
	if err != nil {
		return nil, fmt.Errorf("building artifact fetch request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching artifact %s: %w", artifact.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching artifact %s: unexpected status %s", artifact.Name, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// identityDecrypt is the composition root's default
// workspace.DecryptFunc: a no-op passthrough. Deployments with an
// actual encrypted-artifact vendor wire their own codec here; pkg/workspace
// never implements one itself.
func identityDecrypt(payload []byte) ([]byte, error) {
	return payload, nil
}
