package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// listIssuesHandler handles GET /issues, paginated with filters.
func (s *Server) listIssuesHandler(c *gin.Context) {
	filter := models.IssueFilter{
		CreatedBy:      c.Query("created_by"),
		Platform:       c.Query("platform"),
		Category:       c.Query("category"),
		State:          c.Query("state"),
		IncludeDeleted: c.Query("include_deleted") == "true",
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = offset
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}

	issues, total, err := s.store.ListIssues(c.Request.Context(), filter)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, IssueListResponse{Issues: issues, Total: total})
}

// getIssueHandler handles GET /issues/:id.
func (s *Server) getIssueHandler(c *gin.Context) {
	issue, err := s.store.GetIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

// deleteIssueHandler handles DELETE /issues/:id: soft-delete.
func (s *Server) deleteIssueHandler(c *gin.Context) {
	if err := s.store.SoftDeleteIssue(c.Request.Context(), c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// escalateIssueHandler handles POST /issues/:id/escalate: fire-and-forget
// notification to the chat escalation surface. Returns noop when no
// Escalator has been wired (chat notification disabled).
func (s *Server) escalateIssueHandler(c *gin.Context) {
	issueID := c.Param("id")
	if _, err := s.store.GetIssue(c.Request.Context(), issueID); err != nil {
		writeStoreError(c, err)
		return
	}

	var req EscalateRequest
	_ = c.ShouldBindJSON(&req)

	if s.escalator == nil {
		c.JSON(http.StatusOK, EscalateResponse{Status: "noop"})
		return
	}

	sent, err := s.escalator.Escalate(c.Request.Context(), issueID, req.Reason)
	if err != nil {
		c.JSON(http.StatusOK, EscalateResponse{Status: "noop"})
		return
	}
	if !sent {
		c.JSON(http.StatusOK, EscalateResponse{Status: "noop"})
		return
	}
	c.JSON(http.StatusOK, EscalateResponse{Status: "sent"})
}
