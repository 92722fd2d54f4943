package api

import (
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/orchestrator"
)

// StartAnalysisResponse is the body returned for an accepted submission.
type StartAnalysisResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
}

// ErrorResponse is the typed error body for every failing endpoint.
type ErrorResponse struct {
	Error models.UserError `json:"error"`
}

// ListAnalysesResponse wraps the recent-runs listing.
type ListAnalysesResponse struct {
	Analyses []orchestrator.ListEntry `json:"analyses"`
}

// UsageResponse reports per-run usage records and their cost total.
type UsageResponse struct {
	AnalysisID string               `json:"analysis_id"`
	Records    []models.UsageRecord `json:"records"`
	TotalCost  float64              `json:"total_cost"`
}

// ModelsResponse lists the catalog with live availability.
type ModelsResponse struct {
	Models []models.ModelSpec `json:"models"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
}
