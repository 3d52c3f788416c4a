package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func TestCaller_DeliverHTTP_PostsPayload(t *testing.T) {
	var received calloutPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCaller(nil)
	task := &models.Task{TaskID: "task-1", State: models.StateDone}
	result := &models.AnalysisResult{RootCause: "oom"}
	c.Deliver(context.Background(), srv.URL, task, result)

	assert.Equal(t, "task-1", received.TaskID)
	assert.Equal(t, models.StateDone, received.Status)
	require.NotNil(t, received.Result)
	assert.Equal(t, "oom", received.Result.RootCause)
}

func TestCaller_DeliverHTTP_Non2xxDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCaller(nil)
	task := &models.Task{TaskID: "task-2", State: models.StateFailed, Error: &models.TaskError{Kind: models.ErrAgentTimeout, Message: "timed out"}}
	assert.NotPanics(t, func() {
		c.Deliver(context.Background(), srv.URL, task, nil)
	})
}

func TestCaller_DeliverTrackerComment(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	t.Setenv("WEBHOOK_TEST_TRACKER_TOKEN", "tok-123")
	c := NewCaller(&config.WebhooksConfig{TrackerAPIURL: srv.URL, TrackerTokenEnv: "WEBHOOK_TEST_TRACKER_TOKEN"})
	task := &models.Task{TaskID: "task-3", State: models.StateDone}
	result := &models.AnalysisResult{RootCause: "firmware bug", UserReply: "please update"}
	c.Deliver(context.Background(), trackerScheme+"TRIAGE-9", task, result)

	assert.Equal(t, "/issue/TRIAGE-9/comment", gotPath)
	assert.Contains(t, gotBody["body"], "firmware bug")
}

func TestCaller_DeliverTrackerComment_NoopWithoutTrackerConfigured(t *testing.T) {
	c := NewCaller(nil)
	task := &models.Task{TaskID: "task-4", State: models.StateDone}
	assert.NotPanics(t, func() {
		c.Deliver(context.Background(), trackerScheme+"TRIAGE-10", task, nil)
	})
}
