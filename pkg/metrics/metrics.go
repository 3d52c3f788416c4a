// Package metrics exposes Prometheus instrumentation for the triage
// orchestrator: HTTP request metrics, per-pipeline-stage duration
// histograms, terminal Task outcome counters by error kind, and gauges
// mirroring the queue pool's and store's health snapshots. This is
// operational telemetry for the service's own operators, not a
// user-facing dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

var (
	// Registry holds every collector this package registers. Kept
	// separate from prometheus.DefaultRegisterer so tests can spin up
	// isolated instances without colliding on global state.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled, by method, route, and status.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "tasks",
		Name:      "total",
		Help:      "Total number of Tasks reaching a terminal state, by state.",
	}, []string{"state"})

	taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "tasks",
		Name:      "duration_seconds",
		Help:      "End-to-end Task duration from admission to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
	}, []string{"state"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triage",
		Subsystem: "tasks",
		Name:      "errors_total",
		Help:      "Total number of Task failures, by TaskErrorKind.",
	}, []string{"kind"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "triage",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage within a single Task execution.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "queue",
		Name:      "active_tasks",
		Help:      "Number of Tasks currently claimed (non-terminal) across the pool.",
	})

	queueActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "queue",
		Name:      "active_workers",
		Help:      "Number of worker goroutines currently processing a Task.",
	})

	queueTotalWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "queue",
		Name:      "total_workers",
		Help:      "Total number of worker goroutines in this pod's pool.",
	})

	queueStaleRecovered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "queue",
		Name:      "stale_recovered_total",
		Help:      "Cumulative count of Tasks recovered by the orphan sweep as ServerRestart failures.",
	})

	queueHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "queue",
		Name:      "healthy",
		Help:      "Whether the worker pool last reported healthy (1) or not (0).",
	})

	storeOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "store",
		Name:      "open_connections",
		Help:      "Current number of open database connections.",
	})

	storeInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "store",
		Name:      "connections_in_use",
		Help:      "Current number of database connections in use.",
	})

	storeIdle = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "triage",
		Subsystem: "store",
		Name:      "connections_idle",
		Help:      "Current number of idle database connections.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		tasksTotal,
		taskDuration,
		errorsTotal,
		stageDuration,
		queueDepth,
		queueActiveWorkers,
		queueTotalWorkers,
		queueStaleRecovered,
		queueHealthy,
		storeOpenConnections,
		storeInUse,
		storeIdle,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing every registered collector in
// Prometheus text format, for mounting at GET /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code gin already tracks,
// exposed here so the recording helper does not depend on gin directly.
type statusRecorder interface {
	Status() int
}

// ObserveHTTPRequest records one completed HTTP request. method and path
// should already be a low-cardinality route template (e.g. "/tasks/:id"),
// not the raw request path, to avoid unbounded label cardinality.
func ObserveHTTPRequest(method, path string, rec statusRecorder, duration time.Duration) {
	status := strconv.Itoa(rec.Status())
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncInFlight and DecInFlight bracket one in-flight HTTP request.
func IncInFlight() { httpInFlight.Inc() }
func DecInFlight() { httpInFlight.Dec() }

// RecordTaskTerminal records one Task reaching a terminal state, its
// end-to-end duration, and — on failure — its error kind.
func RecordTaskTerminal(state models.TaskState, errKind models.TaskErrorKind, duration time.Duration) {
	tasksTotal.WithLabelValues(string(state)).Inc()
	taskDuration.WithLabelValues(string(state)).Observe(duration.Seconds())
	if errKind != "" {
		errorsTotal.WithLabelValues(string(errKind)).Inc()
	}
}

// ObserveStageDuration records how long a single pipeline stage took
// within one Task execution (rule_select, materialize, pre_extract,
// agent_run, parse).
func ObserveStageDuration(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetPoolHealth mirrors a queue.PoolHealth snapshot onto the queue
// gauges. Called whenever the pool's health is computed, so the gauges
// stay fresh independent of /metrics scrape timing.
func SetPoolHealth(h *queue.PoolHealth) {
	if h == nil {
		return
	}
	queueDepth.Set(float64(h.ActiveTasks))
	queueActiveWorkers.Set(float64(h.ActiveWorkers))
	queueTotalWorkers.Set(float64(h.TotalWorkers))
	queueStaleRecovered.Set(float64(h.StaleRecovered))
	if h.IsHealthy {
		queueHealthy.Set(1)
	} else {
		queueHealthy.Set(0)
	}
}

// SetStoreHealth mirrors a store.HealthStatus snapshot onto the store
// connection-pool gauges.
func SetStoreHealth(h *store.HealthStatus) {
	if h == nil {
		return
	}
	storeOpenConnections.Set(float64(h.OpenConnections))
	storeInUse.Set(float64(h.InUse))
	storeIdle.Set(float64(h.Idle))
}
