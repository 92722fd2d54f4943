package api

import "github.com/finsight-ai/finsight/pkg/models"

// StartAnalysisRequest is the body of POST /api/v1/analyses.
type StartAnalysisRequest struct {
	StockSymbol       string                   `json:"stock_symbol" binding:"required"`
	Market            string                   `json:"market"`
	AnalysisDate      string                   `json:"analysis_date"`
	SelectedAgents    []string                 `json:"selected_agents" binding:"required"`
	CollaborationMode string                   `json:"collaboration_mode"`
	ResearchDepth     int                      `json:"research_depth"`
	BudgetCap         float64                  `json:"budget_cap"`
	MaxDebateRounds   int                      `json:"max_debate_rounds"`
	ProviderPref      string                   `json:"provider_pref"`
	RuntimeOverrides  *models.RuntimeOverrides `json:"runtime_overrides"`
	FallbackChain     []string                 `json:"fallback_chain"`
}

// toConfig maps the wire request onto the orchestrator's config type.
// Semantic validation (agent keys, market, mode) happens in the orchestrator.
func (r StartAnalysisRequest) toConfig() models.AnalysisConfig {
	return models.AnalysisConfig{
		StockSymbol:       r.StockSymbol,
		Market:            models.Market(r.Market),
		AnalysisDate:      r.AnalysisDate,
		SelectedAgents:    r.SelectedAgents,
		CollaborationMode: models.CollaborationMode(r.CollaborationMode),
		ResearchDepth:     r.ResearchDepth,
		BudgetCap:         r.BudgetCap,
		MaxDebateRounds:   r.MaxDebateRounds,
		ProviderPref:      models.Provider(r.ProviderPref),
		RuntimeOverrides:  r.RuntimeOverrides,
		FallbackChain:     r.FallbackChain,
	}
}
