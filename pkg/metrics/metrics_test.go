package metrics

import (
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

func TestRecordTaskTerminal(t *testing.T) {
	RecordTaskTerminal(models.StateDone, "", 2*time.Second)
	RecordTaskTerminal(models.StateFailed, models.ErrAgentUnavailable, 500*time.Millisecond)

	assert.True(t, metricCounterGreaterOrEqual(t, "triage_tasks_total", map[string]string{"state": "done"}, 1))
	assert.True(t, metricCounterGreaterOrEqual(t, "triage_tasks_errors_total", map[string]string{"kind": string(models.ErrAgentUnavailable)}, 1))
	assert.True(t, metricHistogramCountGreaterOrEqual(t, "triage_tasks_duration_seconds", map[string]string{"state": "failed"}, 1))
}

func TestRecordTaskTerminalSkipsErrorCounterOnSuccess(t *testing.T) {
	before := counterValue(t, "triage_tasks_errors_total", map[string]string{"kind": ""})
	RecordTaskTerminal(models.StateDone, "", time.Second)
	after := counterValue(t, "triage_tasks_errors_total", map[string]string{"kind": ""})
	assert.Equal(t, before, after)
}

func TestSetPoolHealth(t *testing.T) {
	SetPoolHealth(&queue.PoolHealth{
		IsHealthy:      true,
		ActiveWorkers:  2,
		TotalWorkers:   3,
		ActiveTasks:    1,
		StaleRecovered: 4,
	})
	assert.True(t, metricGaugeEquals(t, "triage_queue_active_workers", nil, 2))
	assert.True(t, metricGaugeEquals(t, "triage_queue_total_workers", nil, 3))
	assert.True(t, metricGaugeEquals(t, "triage_queue_active_tasks", nil, 1))
	assert.True(t, metricGaugeEquals(t, "triage_queue_stale_recovered_total", nil, 4))
	assert.True(t, metricGaugeEquals(t, "triage_queue_healthy", nil, 1))
}

func TestSetPoolHealthNilIsNoop(t *testing.T) {
	SetPoolHealth(nil) // must not panic
}

func TestSetStoreHealth(t *testing.T) {
	SetStoreHealth(&store.HealthStatus{OpenConnections: 5, InUse: 2, Idle: 3})
	assert.True(t, metricGaugeEquals(t, "triage_store_open_connections", nil, 5))
	assert.True(t, metricGaugeEquals(t, "triage_store_connections_in_use", nil, 2))
	assert.True(t, metricGaugeEquals(t, "triage_store_connections_idle", nil, 3))
}

func TestObserveStageDuration(t *testing.T) {
	ObserveStageDuration("agent_run", 1500*time.Millisecond)
	assert.True(t, metricHistogramCountGreaterOrEqual(t, "triage_pipeline_stage_duration_seconds", map[string]string{"stage": "agent_run"}, 1))
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	h := Handler()
	require.NotNil(t, h)
}

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricGaugeEquals(t *testing.T, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetGauge() != nil {
				return metric.GetGauge().GetValue() == expected
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}
