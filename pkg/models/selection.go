package models

// SelectionStrategy tags how a routing decision was reached.
type SelectionStrategy string

// Selection strategies, in rough priority order.
const (
	StrategyLocked       SelectionStrategy = "locked"
	StrategyDiversity    SelectionStrategy = "diversity"
	StrategyFlagshipPool SelectionStrategy = "flagship_pool"
	StrategyTraditional  SelectionStrategy = "traditional"
	StrategyFallback     SelectionStrategy = "fallback"
)

// ModelSelection is a routing decision: the chosen model, why it was
// chosen, and the ordered alternatives to try if it fails.
type ModelSelection struct {
	SelectionID     string            `json:"selection_id"`
	Model           *ModelSpec        `json:"model"`
	Confidence      float64           `json:"confidence"`
	Reasoning       string            `json:"reasoning"`
	EstimatedCost   float64           `json:"estimated_cost"`
	EstimatedTimeMs int64             `json:"estimated_time_ms"`
	Alternatives    []string          `json:"alternatives,omitempty"`
	Strategy        SelectionStrategy `json:"strategy"`
}

// RoutingDecisionRecord is the append-only log row for one routing call.
type RoutingDecisionRecord struct {
	Timestamp   int64             `json:"timestamp"`
	SessionID   string            `json:"session_id"`
	AgentRole   string            `json:"agent_role"`
	TaskType    string            `json:"task_type"`
	ModelName   string            `json:"model_name"`
	Provider    Provider          `json:"provider"`
	Strategy    SelectionStrategy `json:"strategy"`
	Confidence  float64           `json:"confidence"`
	Reasoning   string            `json:"reasoning"`
	SelectionID string            `json:"selection_id"`
}
