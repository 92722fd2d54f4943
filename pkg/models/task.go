package models

// Complexity grades how demanding a task is.
type Complexity string

// Task complexity levels.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// TaskSpec describes one unit of model work submitted to an adapter.
type TaskSpec struct {
	TaskType          string         `json:"task_type"`
	Complexity        Complexity     `json:"complexity"`
	EstimatedTokens   int            `json:"estimated_tokens"`
	RequiresReasoning bool           `json:"requires_reasoning,omitempty"`
	RequiresChinese   bool           `json:"requires_chinese,omitempty"`
	RequiresSpeed     bool           `json:"requires_speed,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
}

// TokenUsage reports token consumption for one execution.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TaskResult is the outcome of one task execution.
// Invariant: Success implies ModelUsed != nil.
type TaskResult struct {
	TaskID          string     `json:"task_id"`
	Text            string     `json:"text"`
	ModelUsed       *ModelSpec `json:"model_used,omitempty"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	ActualCost      float64    `json:"actual_cost"`
	TokenUsage      TokenUsage `json:"token_usage"`
	Success         bool       `json:"success"`
	ErrorKind       ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// FailedTask builds a failing TaskResult with the given kind and message.
func FailedTask(taskID string, kind ErrorKind, message string) *TaskResult {
	return &TaskResult{
		TaskID:       taskID,
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}
