package models

import "time"

// Market identifies the exchange universe of a stock symbol.
type Market string

// Supported markets.
const (
	MarketUS     Market = "us"
	MarketCNA    Market = "cn_a"
	MarketHK     Market = "hk"
	MarketGlobal Market = "global"
)

// Valid reports whether the market is recognized.
func (m Market) Valid() bool {
	switch m {
	case MarketUS, MarketCNA, MarketHK, MarketGlobal:
		return true
	}
	return false
}

// AnalysisConfig is the caller-supplied configuration for one analysis run.
type AnalysisConfig struct {
	StockSymbol       string            `json:"stock_symbol"`
	Market            Market            `json:"market"`
	AnalysisDate      string            `json:"analysis_date"`
	SelectedAgents    []string          `json:"selected_agents"`
	CollaborationMode CollaborationMode `json:"collaboration_mode"`
	ResearchDepth     int               `json:"research_depth"`
	BudgetCap         float64           `json:"budget_cap,omitempty"`
	MaxDebateRounds   int               `json:"max_debate_rounds,omitempty"`
	ProviderPref      Provider          `json:"provider_pref,omitempty"`
	RuntimeOverrides  *RuntimeOverrides `json:"runtime_overrides,omitempty"`
	// FallbackChain entries use "provider:model" form.
	FallbackChain []string `json:"fallback_chain,omitempty"`
}

// AnalysisRun is the top-level user-visible artifact of one analysis.
type AnalysisRun struct {
	AnalysisID        string               `json:"analysis_id"`
	StockSymbol       string               `json:"stock_symbol"`
	Market            Market               `json:"market"`
	AnalysisDate      string               `json:"analysis_date"`
	SelectedAgents    []string             `json:"selected_agents"`
	CollaborationMode CollaborationMode    `json:"collaboration_mode"`
	ResearchDepth     int                  `json:"research_depth"`
	ProviderPref      Provider             `json:"provider_pref,omitempty"`
	Status            SessionStatus        `json:"status"`
	StartedAt         time.Time            `json:"started_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	Config            *AnalysisConfig      `json:"config,omitempty"`
	ResultsSummary    *CollaborationResult `json:"results_summary,omitempty"`
	ErrorMessage      string               `json:"error_message,omitempty"`
}

// SessionRecord is the value stored under session:{token} for UI recovery.
type SessionRecord struct {
	AnalysisID string          `json:"analysis_id"`
	Status     SessionStatus   `json:"status"`
	Symbol     string          `json:"symbol"`
	Market     Market          `json:"market"`
	FormConfig *AnalysisConfig `json:"form_config,omitempty"`
	Metrics    *SessionMetrics `json:"metrics,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
