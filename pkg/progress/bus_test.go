package progress

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe("t1")
	defer unsubscribe()

	bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateAnalyzing, ProgressPercent: 40})

	select {
	case event := <-ch:
		assert.Equal(t, models.StateAnalyzing, event.State)
		assert.Equal(t, 40, event.ProgressPercent)
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestSnapshotReturnsLastPublishedEvent(t *testing.T) {
	bus := New()
	_, ok := bus.Snapshot("missing")
	assert.False(t, ok)

	bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateQueued})
	bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateDone})

	snapshot, ok := bus.Snapshot("t1")
	require.True(t, ok)
	assert.Equal(t, models.StateDone, snapshot.State)
}

func TestPublishDoesNotBlockOnStuckSubscriber(t *testing.T) {
	bus := New()
	_, unsubscribe := bus.Subscribe("t1")
	defer unsubscribe()

	for i := 0; i < ringSize+5; i++ {
		bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateAnalyzing, ProgressPercent: i})
	}
	// Publish must return promptly regardless of the unread backlog.
}

func TestForgetDropsTopic(t *testing.T) {
	bus := New()
	bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateDone})
	bus.Forget("t1")

	_, ok := bus.Snapshot("t1")
	assert.False(t, ok)
}

func TestStreamHandlerClosesAfterTerminalEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := New()

	router := gin.New()
	router.GET("/tasks/:id/events", bus.StreamHandler("id"))

	server := httptest.NewServer(router)
	defer server.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateAnalyzing, ProgressPercent: 50})
		time.Sleep(20 * time.Millisecond)
		bus.Publish(models.ProgressEvent{TaskID: "t1", State: models.StateDone, ProgressPercent: 100})
	}()

	resp, err := http.Get(server.URL + "/tasks/t1/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], `"done"`)
}

func TestSnapshotHandlerReturnsNotFoundForUnknownTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := New()
	router := gin.New()
	router.GET("/tasks/:id/progress", bus.SnapshotHandler("id"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/unknown/progress", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
