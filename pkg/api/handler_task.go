package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// createTaskHandler handles POST /tasks: admits a Task for an
// already-registered Issue.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := s.store.GetIssue(c.Request.Context(), req.IssueID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	task, err := admitTask(c.Request.Context(), s.store, issue, req.AgentType, requestedBy(c, req.Username))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

// getTaskHandler handles GET /tasks/:task_id.
func (s *Server) getTaskHandler(c *gin.Context) {
	task, err := s.store.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// getTaskResultHandler handles GET /tasks/:task_id/result.
func (s *Server) getTaskResultHandler(c *gin.Context) {
	result, err := s.store.GetResult(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// cancelTaskHandler handles POST /tasks/:task_id/cancel. Idempotent: a
// task already terminal, or already signalled, returns its current state
// without error.
func (s *Server) cancelTaskHandler(c *gin.Context) {
	taskID := c.Param("task_id")
	ctx := c.Request.Context()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	if task.State.IsTerminal() {
		c.JSON(http.StatusOK, CancelResponse{TaskID: taskID, State: string(task.State)})
		return
	}

	if s.pool.CancelTask(taskID) {
		// A worker owns it; its own teardown path will record the
		// terminal state once the pipeline observes ctx.Done().
		c.JSON(http.StatusOK, CancelResponse{TaskID: taskID, State: string(task.State)})
		return
	}

	// Not yet claimed by any worker in this pod: cancel it directly so a
	// queued task does not wait for a worker to claim it only to be torn
	// down immediately.
	taskErr := &models.TaskError{Kind: models.ErrCancelled, Message: "cancelled before execution"}
	if err := s.store.FinishTerminal(ctx, taskID, models.StateCancelled, "cancelled", taskErr); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, CancelResponse{TaskID: taskID, State: string(models.StateCancelled)})
}
