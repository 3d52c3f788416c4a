package progress

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// keepaliveInterval bounds how long an idle SSE connection can go without
// a write before an intermediate proxy times it out.
const keepaliveInterval = 15 * time.Second

// StreamHandler serves a task's stream (pkg/api mounts it at
// GET /tasks/:task_id/stream) as one JSON ProgressEvent per
// line over text/event-stream, closing the stream once a terminal state
// is observed. A client that connects after the task has already reached
// a terminal state still gets that final event before the stream closes.
func (b *Bus) StreamHandler(taskIDParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param(taskIDParam)

		ch, unsubscribe := b.Subscribe(taskID)
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		if snapshot, ok := b.Snapshot(taskID); ok {
			if writeEvent(c, snapshot) && snapshot.State.IsTerminal() {
				return
			}
		}

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-ch:
				if !ok {
					return false
				}
				if !writeEvent(c, event) {
					return false
				}
				return !event.State.IsTerminal()
			case <-ticker.C:
				_, err := c.Writer.Write([]byte(": keepalive\n\n"))
				return err == nil
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

func writeEvent(c *gin.Context, event models.ProgressEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if _, err := c.Writer.Write(data); err != nil {
		return false
	}
	if _, err := c.Writer.Write([]byte("\n")); err != nil {
		return false
	}
	c.Writer.Flush()
	return true
}

// SnapshotHandler serves a task's last published ProgressEvent as a
// single JSON snapshot for clients that never open an SSE stream. pkg/api
// does not mount it; its polling route, GET /tasks/:task_id, reads the
// task from the store instead.
func (b *Bus) SnapshotHandler(taskIDParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := c.Param(taskIDParam)
		snapshot, ok := b.Snapshot(taskID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no progress recorded for task"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}
