package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/queue"
	"github.com/hwvendor/triage-orchestrator/pkg/store"
)

// writeStoreError maps a persistence-layer error to an HTTP response.
func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrIssueNotFound), errors.Is(err, store.ErrTaskNotFound), errors.Is(err, store.ErrResultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrActiveTaskExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrNoTasksAvailable):
		c.JSON(http.StatusNotFound, gin.H{"error": "no task available"})
	default:
		slog.Error("unexpected store error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
