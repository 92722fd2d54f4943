package models

// AgentRole declaratively describes a participating analyst agent.
type AgentRole struct {
	Key         string `json:"key" yaml:"key"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	TaskType    string `json:"task_type" yaml:"task_type"`
	// Priority ranks agents for core-team selection in the simplified
	// collaboration fallback. Lower value = more essential.
	Priority int `json:"priority" yaml:"priority"`
}

// Default agent role keys recognized out of the box. The registry accepts
// additional roles from configuration.
const (
	RoleNewsHunter           = "news_hunter"
	RoleFundamentalExpert    = "fundamental_expert"
	RoleTechnicalAnalyst     = "technical_analyst"
	RoleSentimentAnalyst     = "sentiment_analyst"
	RoleRiskManager          = "risk_manager"
	RolePolicyResearcher     = "policy_researcher"
	RoleToolEngineer         = "tool_engineer"
	RoleComplianceOfficer    = "compliance_officer"
	RoleChiefDecisionOfficer = "chief_decision_officer"
)

// DefaultAgentRoles returns the built-in analyst team.
func DefaultAgentRoles() []AgentRole {
	return []AgentRole{
		{Key: RoleNewsHunter, DisplayName: "News Hunter", TaskType: "news_analysis", Priority: 3},
		{Key: RoleFundamentalExpert, DisplayName: "Fundamental Expert", TaskType: "fundamental_analysis", Priority: 1},
		{Key: RoleTechnicalAnalyst, DisplayName: "Technical Analyst", TaskType: "technical_analysis", Priority: 2},
		{Key: RoleSentimentAnalyst, DisplayName: "Sentiment Analyst", TaskType: "sentiment_analysis", Priority: 4},
		{Key: RoleRiskManager, DisplayName: "Risk Manager", TaskType: "risk_assessment", Priority: 5},
		{Key: RolePolicyResearcher, DisplayName: "Policy Researcher", TaskType: "policy_analysis", Priority: 6},
		{Key: RoleToolEngineer, DisplayName: "Tool Engineer", TaskType: "tool_development", Priority: 8},
		{Key: RoleComplianceOfficer, DisplayName: "Compliance Officer", TaskType: "compliance_check", Priority: 7},
		{Key: RoleChiefDecisionOfficer, DisplayName: "Chief Decision Officer", TaskType: "decision_making", Priority: 0},
	}
}

// AgentBinding is the per-agent routing policy.
type AgentBinding struct {
	LockedModel   string   `json:"locked_model,omitempty" yaml:"locked_model,omitempty"`
	AllowModels   []string `json:"allow_models,omitempty" yaml:"allow_models,omitempty"`
	DenyModels    []string `json:"deny_models,omitempty" yaml:"deny_models,omitempty"`
	FallbackChain []string `json:"fallback_chain,omitempty" yaml:"fallback_chain,omitempty"`
}

// TaskBinding is the per-task-type routing policy.
type TaskBinding struct {
	AllowModels []string `json:"allow_models,omitempty" yaml:"allow_models,omitempty"`
	DenyModels  []string `json:"deny_models,omitempty" yaml:"deny_models,omitempty"`
}

// RuntimeOverrides are session- or request-scoped settings that dominate
// static bindings.
type RuntimeOverrides struct {
	EnableModelLock           bool                `json:"enable_model_lock,omitempty"`
	ModelOverrides            map[string]string   `json:"model_overrides,omitempty"`
	EnableAllowedModelsByRole bool                `json:"enable_allowed_models_by_role,omitempty"`
	AllowedModelsByRole       map[string][]string `json:"allowed_models_by_role,omitempty"`
}

// LockedModelFor resolves the locked model for a role, empty if none.
func (o *RuntimeOverrides) LockedModelFor(role string) string {
	if o == nil || !o.EnableModelLock || o.ModelOverrides == nil {
		return ""
	}
	return o.ModelOverrides[role]
}

// AllowedModelsFor resolves the per-role allow-list override, nil if unset.
func (o *RuntimeOverrides) AllowedModelsFor(role string) []string {
	if o == nil || !o.EnableAllowedModelsByRole || o.AllowedModelsByRole == nil {
		return nil
	}
	return o.AllowedModelsByRole[role]
}
