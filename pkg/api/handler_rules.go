package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hwvendor/triage-orchestrator/pkg/rules"
)

// listRulesHandler handles GET /rules.
func (s *Server) listRulesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.catalog.Snapshot()})
}

// getRuleHandler handles GET /rules/:id.
func (s *Server) getRuleHandler(c *gin.Context) {
	rule, ok := s.catalog.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// createRuleHandler handles POST /rules.
func (s *Server) createRuleHandler(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, exists := s.catalog.Get(req.ID); exists {
		c.JSON(http.StatusConflict, gin.H{"error": "rule already exists"})
		return
	}
	if err := s.catalog.Put(toRuleInput(req)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusCreated)
}

// putRuleHandler handles PUT /rules/:id: create-or-replace.
func (s *Server) putRuleHandler(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = c.Param("id")
	if err := s.catalog.Put(toRuleInput(req)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// deleteRuleHandler handles DELETE /rules/:id.
func (s *Server) deleteRuleHandler(c *gin.Context) {
	if err := s.catalog.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// reloadRulesHandler handles POST /rules/reload: re-walk the rules
// directory and atomically swap in the new catalog snapshot.
func (s *Server) reloadRulesHandler(c *gin.Context) {
	if err := s.catalog.Reload(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule_count": len(s.catalog.Snapshot())})
}

func toRuleInput(req RuleRequest) rules.RuleInput {
	return rules.RuleInput{
		ID:         req.ID,
		Name:       req.Name,
		Version:    req.Version,
		Enabled:    req.Enabled,
		Triggers:   req.Triggers,
		DependsOn:  req.DependsOn,
		PreExtract: req.PreExtract,
		NeedsCode:  req.NeedsCode,
		Body:       req.Body,
	}
}
