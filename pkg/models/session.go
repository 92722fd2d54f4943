package models

import "time"

// CollaborationMode selects the protocol a team of agents runs under.
type CollaborationMode string

// Collaboration modes.
const (
	ModeSequential CollaborationMode = "sequential"
	ModeParallel   CollaborationMode = "parallel"
	ModeDebate     CollaborationMode = "debate"
)

// Valid reports whether the mode is one of the recognized protocols.
func (m CollaborationMode) Valid() bool {
	switch m {
	case ModeSequential, ModeParallel, ModeDebate:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a collaboration session or run.
type SessionStatus string

// Session statuses.
const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// TerminalStatus reports whether the status is final.
func TerminalStatus(s SessionStatus) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SessionMetrics is the per-session accounting record. Counters are
// incremented on every TaskResult; AvgConfidence is a running mean.
type SessionMetrics struct {
	TotalTasks      int            `json:"total_tasks"`
	SuccessfulTasks int            `json:"successful_tasks"`
	TotalCost       float64        `json:"total_cost"`
	TotalTimeMs     int64          `json:"total_time_ms"`
	ModelsUsed      map[string]int `json:"models_used,omitempty"`
	AvgConfidence   float64        `json:"avg_confidence"`
}

// RecordTask folds one task outcome into the metrics.
func (m *SessionMetrics) RecordTask(result *TaskResult, confidence float64) {
	m.TotalTasks++
	if result.Success {
		m.SuccessfulTasks++
	}
	m.TotalCost += result.ActualCost
	m.TotalTimeMs += result.ExecutionTimeMs
	if result.ModelUsed != nil {
		if m.ModelsUsed == nil {
			m.ModelsUsed = make(map[string]int)
		}
		m.ModelsUsed[result.ModelUsed.Name]++
	}
	// Running mean over all recorded tasks.
	m.AvgConfidence += (confidence - m.AvgConfidence) / float64(m.TotalTasks)
}

// CollaborationSession is one multi-agent run's accounting scope.
type CollaborationSession struct {
	SessionID       string            `json:"session_id"`
	Mode            CollaborationMode `json:"mode"`
	Participants    []string          `json:"participants"`
	MaxDebateRounds int               `json:"max_debate_rounds"`
	BudgetCap       float64           `json:"budget_cap"`
	Metrics         SessionMetrics    `json:"metrics"`
	Status          SessionStatus     `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DebateTurn is one utterance in a debate history.
type DebateTurn struct {
	Round    int    `json:"round"`
	Agent    string `json:"agent"`
	Position string `json:"position"`
}

// CollaborationResult is the outcome of one collaborative analysis.
type CollaborationResult struct {
	FinalText           string            `json:"final_text"`
	ParticipatingModels []string          `json:"participating_models"`
	IndividualResults   []*TaskResult     `json:"individual_results"`
	Mode                CollaborationMode `json:"mode"`
	TotalCost           float64           `json:"total_cost"`
	TotalTimeMs         int64             `json:"total_time_ms"`
	Success             bool              `json:"success"`
	ErrorMessage        string            `json:"error_message,omitempty"`
	Metadata            map[string]any    `json:"metadata,omitempty"`
}
