package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwvendor/triage-orchestrator/pkg/agentrunner"
	"github.com/hwvendor/triage-orchestrator/pkg/api"
	"github.com/hwvendor/triage-orchestrator/pkg/chatnotify"
	"github.com/hwvendor/triage-orchestrator/pkg/metrics"
	"github.com/hwvendor/triage-orchestrator/pkg/pipeline"
	"github.com/hwvendor/triage-orchestrator/pkg/preextract"
	"github.com/hwvendor/triage-orchestrator/pkg/progress"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/rules"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
	"github.com/hwvendor/triage-orchestrator/pkg/webhook"
	"github.com/hwvendor/triage-orchestrator/pkg/workspace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and worker pool",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := slog.Default()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
	}()
	log.Info("store ready", "driver", cfg.System.Store.Driver)

	catalog := rules.NewCatalog(cfg.Rules.Dir, log)
	if err := catalog.Reload(); err != nil {
		return fmt.Errorf("loading rule catalog: %w", err)
	}
	log.Info("rule catalog loaded")

	if cfg.Rules.WatchEnabled {
		if err := catalog.Watch(ctx, cfg.Rules.WatchDebounce); err != nil {
			return fmt.Errorf("starting rule catalog watch: %w", err)
		}
		log.Info("rule catalog hot-reload watch started", "dir", cfg.Rules.Dir)
	}

	agents := agentrunner.NewFactory(cfg.Agents, log)

	materializer := workspace.New(cfg.Workspace, newHTTPArtifactResolver(), identityDecrypt, nil, log)
	extractor := preextract.New(cfg.PreExtract, log)
	bus := progress.New()

	retentionSweeper := workspace.NewRetentionSweeper(cfg.Workspace, log)
	gcScheduler := store.NewScheduler(retentionSweeper, log)
	if err := gcScheduler.Start(fmt.Sprintf("@every %s", cfg.Workspace.RetentionSweepInterval)); err != nil {
		return fmt.Errorf("starting workspace retention scheduler: %w", err)
	}
	defer gcScheduler.Stop()

	notifier := chatnotify.New(cfg.System.ChatNotify)
	webhookCaller := webhook.NewCaller(cfg.System.Webhooks)

	pl := pipeline.New(st, st, st, catalog, materializer, extractor, agents, bus, notifier, webhookCaller, log)

	podID := getEnv("POD_ID", hostnameOrDefault())
	pool := queue.NewWorkerPool(podID, st, cfg.Queue, pl, bus, log)

	var waker *queue.RedisWaker
	if cfg.Queue.Backend == "redis" {
		waker, err = queue.NewRedisWaker(ctx, cfg.Queue.RedisAddr, log)
		if err != nil {
			return fmt.Errorf("connecting to redis queue-wake backend: %w", err)
		}
		pool.SetWake(waker.Channel())
		log.Info("redis dequeue-wake notifier connected", "addr", cfg.Queue.RedisAddr)
	}

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}

	server := api.NewServer(cfg, st, bus, pool, catalog, agents)
	if notifier != nil {
		server.SetEscalator(notifier)
	}
	ingestor := webhook.NewIngestor(st, cfg.System.Webhooks)
	server.SetWebhookHandler(ingestor.Handler)

	if err := server.ValidateWiring(); err != nil {
		return fmt.Errorf("server wiring incomplete: %w", err)
	}

	stopHealthTicker := startHealthGaugeTicker(ctx, st, pool, log)
	defer stopHealthTicker()

	addr := ":" + cfg.System.HTTPPort
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCh:
		log.Info("shutdown signal received, draining in-flight tasks")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down http server", "error", err)
	}
	pool.Stop()
	if waker != nil {
		if err := waker.Close(); err != nil {
			log.Error("error closing redis waker", "error", err)
		}
	}

	log.Info("shutdown complete")
	return nil
}

// startHealthGaugeTicker periodically refreshes the queue/store metrics
// gauges independent of HTTP traffic, since pkg/queue cannot import
// pkg/metrics directly (it would cycle back through pkg/metrics's own
// import of pkg/queue for *queue.PoolHealth).
func startHealthGaugeTicker(ctx context.Context, st store.Store, pool *queue.WorkerPool, log *slog.Logger) func() {
	ticker := time.NewTicker(15 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if h, err := st.Health(ctx); err == nil {
					metrics.SetStoreHealth(h)
				}
				metrics.SetPoolHealth(pool.Health(ctx))
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "triageorc-pod"
	}
	return h
}
