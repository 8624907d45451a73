// Package server exposes the consolidation engine over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inquora/distill/internal/consolidate"
	"github.com/inquora/distill/internal/consolidate/rollback"
	"github.com/inquora/distill/internal/model"
	"github.com/inquora/distill/internal/store"
)

type Server struct {
	engine       *gin.Engine
	orchestrator *consolidate.Orchestrator
	rollback     *rollback.Manager
	store        *store.Store
}

func New(o *consolidate.Orchestrator, rb *rollback.Manager, st *store.Store) *Server {
	s := &Server{
		engine:       gin.Default(),
		orchestrator: o,
		rollback:     rb,
		store:        st,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.POST("/runs", s.startRun)
	s.engine.GET("/runs", s.listRuns)
	s.engine.GET("/runs/:id/report", s.runReport)
	s.engine.POST("/rollback", s.rollbackRun)
	s.engine.POST("/validate", s.validateRun)
}

// Run blocks serving HTTP on addr.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// startRun executes a consolidation run synchronously and returns its
// report. Degraded runs still return 200; the report carries the warnings.
func (s *Server) startRun(c *gin.Context) {
	var req consolidate.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.OrgID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "org_id is required"})
		return
	}
	for _, t := range req.EntityTypes {
		if _, err := model.ParseEntityType(string(t)); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := s.orchestrator.Run(c.Request.Context(), &req)
	if err != nil {
		resp := gin.H{"error": err.Error()}
		if report != nil {
			resp["report"] = report
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListAuditRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) runReport(c *gin.Context) {
	rec, err := s.store.GetAuditRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec.Report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run " + rec.AuditID + " has no report yet"})
		return
	}
	c.JSON(http.StatusOK, rec.Report)
}

type rollbackRequest struct {
	AuditID string `json:"audit_id" binding:"required"`
	Reason  string `json:"reason"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) rollbackRun(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	res, err := s.rollback.Rollback(c.Request.Context(), req.AuditID, req.Reason, req.Confirm)
	if err != nil {
		switch {
		case errors.Is(err, rollback.ErrNotConfirmed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, rollback.ErrAlreadyRolledBack):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

type validateRequest struct {
	// AuditID is optional; omitting it validates every recorded run.
	AuditID string `json:"audit_id"`
}

func (s *Server) validateRun(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	checks, err := s.orchestrator.Validate(c.Request.Context(), req.AuditID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	passed := true
	for _, check := range checks {
		if !check.Passed {
			passed = false
		}
	}
	c.JSON(http.StatusOK, gin.H{"passed": passed, "checks": checks})
}
