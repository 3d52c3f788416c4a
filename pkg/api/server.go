// Package api provides the HTTP surface for the triage orchestrator:
// issue/task admission, progress streaming, result retrieval, rule
// catalog CRUD, webhook-adjacent escalation, and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/agentrunner"
	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/metrics"
	"github.com/hwvendor/triage-orchestrator/pkg/progress"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/rules"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
	"github.com/hwvendor/triage-orchestrator/pkg/version"
)

// Pool is the subset of *queue.WorkerPool the API needs for cancellation
// and health reporting.
type Pool interface {
	CancelTask(taskID string) bool
	Health(ctx context.Context) *queue.PoolHealth
}

// Escalator is the optional chat-escalation surface (pkg/chatnotify). A
// nil Escalator makes POST /issues/:id/escalate a no-op reporting "noop".
type Escalator interface {
	Escalate(ctx context.Context, issueID, reason string) (sent bool, err error)
}

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	store      store.Store
	bus        *progress.Bus
	pool       Pool
	catalog    *rules.Catalog
	agents     *agentrunner.Factory
	escalator  Escalator // nil until set (optional)
}

// NewServer constructs a Server and registers every route. Services
// passed here are the ones every deployment needs; SetEscalator wires in
// the optional chat-notification surface afterward.
func NewServer(cfg *config.Config, st store.Store, bus *progress.Bus, pool Pool, catalog *rules.Catalog, agents *agentrunner.Factory) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), securityHeaders(), metrics.Instrument())

	s := &Server{
		engine:  e,
		cfg:     cfg,
		store:   st,
		bus:     bus,
		pool:    pool,
		catalog: catalog,
		agents:  agents,
	}
	s.setupRoutes()
	return s
}

// SetEscalator wires the chat-notification escalation surface. Optional:
// a nil Escalator keeps POST /issues/:id/escalate returning {status: noop}.
func (s *Server) SetEscalator(e Escalator) {
	s.escalator = e
}

// SetWebhookHandler wires the inbound tracker webhook ingestor
// (pkg/webhook.Ingestor.Handler). Optional: if never called, POST
// /webhooks/tracker 404s. Registered outside the bearer-auth group since
// the tracker authenticates via its own HMAC signature, not our token.
func (s *Server) SetWebhookHandler(h gin.HandlerFunc) {
	s.engine.POST("/webhooks/tracker", h)
}

// ValidateWiring checks that every service a production deployment needs
// has been wired, so startup fails fast instead of surfacing 500s the
// first time a request touches an unwired dependency.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.store == nil {
		errs = append(errs, fmt.Errorf("store not set"))
	}
	if s.bus == nil {
		errs = append(errs, fmt.Errorf("progress bus not set"))
	}
	if s.pool == nil {
		errs = append(errs, fmt.Errorf("worker pool not set"))
	}
	if s.catalog == nil {
		errs = append(errs, fmt.Errorf("rule catalog not set"))
	}
	if s.agents == nil {
		errs = append(errs, fmt.Errorf("agent factory not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("api server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64<<20)
		c.Next()
	})

	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/health/agents", s.agentHealthHandler)
	if m := s.cfg.System.Metrics; m == nil || m.Enabled {
		s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	auth := s.engine.Group("/")
	auth.Use(bearerAuth(s.cfg.System.Auth))

	auth.POST("/analyze", s.submitAnalyzeHandler)
	auth.GET("/analyze/:task_id", s.getAnalyzeHandler)

	auth.POST("/tasks", s.createTaskHandler)
	auth.GET("/tasks/:task_id", s.getTaskHandler)
	auth.GET("/tasks/:task_id/stream", s.bus.StreamHandler("task_id"))
	auth.GET("/tasks/:task_id/result", s.getTaskResultHandler)
	auth.POST("/tasks/:task_id/cancel", s.cancelTaskHandler)

	auth.GET("/issues", s.listIssuesHandler)
	auth.GET("/issues/:id", s.getIssueHandler)
	auth.DELETE("/issues/:id", s.deleteIssueHandler)
	auth.POST("/issues/:id/escalate", s.escalateIssueHandler)

	auth.GET("/rules", s.listRulesHandler)
	auth.GET("/rules/:id", s.getRuleHandler)
	auth.POST("/rules", s.createRuleHandler)
	auth.PUT("/rules/:id", s.putRuleHandler)
	auth.DELETE("/rules/:id", s.deleteRuleHandler)
	auth.POST("/rules/reload", s.reloadRulesHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, for
// tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := s.store.Health(reqCtx)
	status := "healthy"
	code := http.StatusOK
	if err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	metrics.SetStoreHealth(dbHealth)

	resp := HealthResponse{Status: status, Version: version.Full(), Database: dbHealth}
	if s.pool != nil {
		resp.WorkerPool = s.pool.Health(reqCtx)
		metrics.SetPoolHealth(resp.WorkerPool)
	}
	c.JSON(code, resp)
}

func (s *Server) agentHealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.agents.HealthAll(c.Request.Context())})
}
