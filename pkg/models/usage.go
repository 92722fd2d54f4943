package models

import "time"

// UsageRecord is one entry in the append-only usage log.
type UsageRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Provider      Provider  `json:"provider"`
	ModelName     string    `json:"model_name"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	TotalTokens   int       `json:"total_tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	SessionID     string    `json:"session_id"`
	AnalysisType  string    `json:"analysis_type,omitempty"`
}

// ModelPerf is the moving-average performance record persisted under
// model_perf:{model,task_type}.
type ModelPerf struct {
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	SuccessRate       float64   `json:"success_rate"`
	SampleCount       int       `json:"sample_count"`
	LastUpdated       time.Time `json:"last_updated"`
}

// Observe folds one execution into the moving averages.
func (p *ModelPerf) Observe(responseTimeMs int64, success bool) {
	p.SampleCount++
	n := float64(p.SampleCount)
	p.AvgResponseTimeMs += (float64(responseTimeMs) - p.AvgResponseTimeMs) / n
	s := 0.0
	if success {
		s = 1.0
	}
	p.SuccessRate += (s - p.SuccessRate) / n
	p.LastUpdated = time.Now()
}

// HistoricalFactor combines success rate (weight 0.6) and a normalized
// latency term (weight 0.4, capped at 10s) into a single score for
// history-aware routing. Faster models score higher on the latency term.
func (p *ModelPerf) HistoricalFactor() float64 {
	latency := p.AvgResponseTimeMs / 10000.0
	if latency > 1.0 {
		latency = 1.0
	}
	return p.SuccessRate*0.6 + (1.0-latency)*0.4
}
