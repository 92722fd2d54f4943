// Package api exposes the orchestration API over HTTP with gin.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/finsight-ai/finsight/pkg/orchestrator"
)

// Server is the HTTP front of the orchestrator.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	return &Server{
		orch:   orch,
		logger: slog.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), securityHeaders())

	r.GET("/health", s.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyses", s.StartAnalysis)
		v1.GET("/analyses", s.ListAnalyses)
		v1.GET("/analyses/:id/progress", s.GetProgress)
		v1.GET("/analyses/:id/result", s.GetResult)
		v1.GET("/analyses/:id/usage", s.GetUsage)
		v1.POST("/analyses/:id/cancel", s.CancelAnalysis)
		v1.POST("/analyses/:id/pause", s.PauseAnalysis)
		v1.POST("/analyses/:id/resume", s.ResumeAnalysis)
		v1.GET("/models", s.ListModels)
	}
	return r
}
