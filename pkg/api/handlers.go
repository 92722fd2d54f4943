package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/finsight-ai/finsight/pkg/models"
)

// StartAnalysis handles POST /api/v1/analyses.
func (s *Server) StartAnalysis(c *gin.Context) {
	var req StartAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, models.NewUserError(models.ErrKindValidation, err.Error()))
		return
	}

	analysisID, err := s.orch.StartAnalysis(c.Request.Context(), req.toConfig())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, StartAnalysisResponse{
		AnalysisID: analysisID,
		Status:     string(models.StatusPending),
	})
}

// GetProgress handles GET /api/v1/analyses/:id/progress.
func (s *Server) GetProgress(c *gin.Context) {
	snap, err := s.orch.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetResult handles GET /api/v1/analyses/:id/result.
func (s *Server) GetResult(c *gin.Context) {
	rec, err := s.orch.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetUsage handles GET /api/v1/analyses/:id/usage.
func (s *Server) GetUsage(c *gin.Context) {
	id := c.Param("id")
	records, err := s.orch.SessionUsage(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total := 0.0
	for _, r := range records {
		total += r.EstimatedCost
	}
	c.JSON(http.StatusOK, UsageResponse{AnalysisID: id, Records: records, TotalCost: total})
}

// CancelAnalysis handles POST /api/v1/analyses/:id/cancel.
func (s *Server) CancelAnalysis(c *gin.Context) {
	s.controlOp(c, s.orch.Cancel)
}

// PauseAnalysis handles POST /api/v1/analyses/:id/pause.
func (s *Server) PauseAnalysis(c *gin.Context) {
	s.controlOp(c, s.orch.Pause)
}

// ResumeAnalysis handles POST /api/v1/analyses/:id/resume.
func (s *Server) ResumeAnalysis(c *gin.Context) {
	s.controlOp(c, s.orch.Resume)
}

func (s *Server) controlOp(c *gin.Context, op func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := op(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis_id": id, "ok": true})
}

// ListAnalyses handles GET /api/v1/analyses?limit=.
func (s *Server) ListAnalyses(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(c, models.NewUserError(models.ErrKindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.orch.ListLatest(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListAnalysesResponse{Analyses: entries})
}

// ListModels handles GET /api/v1/models.
func (s *Server) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, ModelsResponse{Models: s.orch.Models()})
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	report := s.orch.HealthReport()
	providers := make(map[string]string, len(report))
	healthy := true
	for provider, err := range report {
		if err != nil {
			providers[string(provider)] = err.Error()
			healthy = false
		} else {
			providers[string(provider)] = "ok"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{Status: status, Providers: providers})
}
