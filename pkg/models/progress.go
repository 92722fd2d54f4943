package models

// ProgressStep is one weighted stage of an analysis run.
// Weights across a run's steps sum to 1.0.
type ProgressStep struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// ProgressSnapshot is the externally observable state of a run at one
// instant, persisted under progress:{analysis_id}.
type ProgressSnapshot struct {
	AnalysisID      string         `json:"analysis_id"`
	Status          SessionStatus  `json:"status"`
	CurrentStep     int            `json:"current_step_index"`
	TotalSteps      int            `json:"total_steps"`
	StepName        string         `json:"current_step_name"`
	StepDescription string         `json:"current_step_description"`
	ProgressPercent float64        `json:"progress_percent"`
	ElapsedSec      float64        `json:"elapsed_sec"`
	EstimatedSec    float64        `json:"estimated_total_sec"`
	RemainingSec    float64        `json:"remaining_sec"`
	LastMessage     string         `json:"last_message"`
	LastUpdateEpoch int64          `json:"last_update_epoch"`
	Steps           []ProgressStep `json:"steps"`
	RawResults      map[string]any `json:"raw_results,omitempty"`
}
