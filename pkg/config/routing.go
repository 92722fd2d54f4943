package config

import "strings"

// RoutingWeights are the traditional-scoring weights. They should sum to 1.
type RoutingWeights struct {
	Quality     float64 `yaml:"quality"`
	Performance float64 `yaml:"performance"`
	Cost        float64 `yaml:"cost"`
}

// Sum returns the total of the three weights.
func (w RoutingWeights) Sum() float64 {
	return w.Quality + w.Performance + w.Cost
}

// PoolConfig describes one model pool. Pools are data: adding a pool is a
// configuration change, not a code change.
type PoolConfig struct {
	// Flagship is the preferred model when this pool wins.
	Flagship string `yaml:"flagship"`

	// Alternatives are pool-ordered fallbacks behind the flagship.
	Alternatives []string `yaml:"alternatives,omitempty"`

	// TargetRoles are agent role keys whose tasks lean toward this pool.
	TargetRoles []string `yaml:"target_roles,omitempty"`

	// TaskTypes are task types whose tasks lean toward this pool.
	TaskTypes []string `yaml:"task_types,omitempty"`
}

// RoutingConfig is the data-driven half of the routing engine: pools,
// task-type affinities, the fixed fallback order, and alias mappings.
type RoutingConfig struct {
	// Pools maps pool name to its definition.
	Pools map[string]PoolConfig `yaml:"pools,omitempty"`

	// TaskPoolAffinity maps task type to per-pool affinity in [0,1].
	// Each row should sum to 1.
	TaskPoolAffinity map[string]map[string]float64 `yaml:"task_pool_affinity,omitempty"`

	// DefaultFallbackOrder is the fixed-priority list used when every other
	// routing strategy comes up empty.
	DefaultFallbackOrder []string `yaml:"default_fallback_order,omitempty"`

	// Aliases maps short model names to canonical catalog names.
	// "provider/name" forms are normalized separately by stripping the prefix.
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// CanonicalModelName normalizes a user-supplied model name: a
// "provider/name" form is stripped to its name part, then alias mappings
// apply. Unknown names pass through unchanged.
func (c *RoutingConfig) CanonicalModelName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if c != nil && c.Aliases != nil {
		if canonical, ok := c.Aliases[name]; ok {
			return canonical
		}
	}
	return name
}

// Pool names shipped by default.
const (
	PoolDeepReasoning    = "deep_reasoning"
	PoolTechnicalLongSeq = "technical_longseq"
)

// DefaultRoutingConfig returns the built-in two-pool routing table.
func DefaultRoutingConfig() *RoutingConfig {
	return &RoutingConfig{
		Pools: map[string]PoolConfig{
			PoolDeepReasoning: {
				Flagship:     "deepseek-r1",
				Alternatives: []string{"o3-mini", "claude-sonnet-4"},
				TargetRoles: []string{
					"fundamental_expert", "chief_decision_officer", "risk_manager",
					"policy_researcher", "compliance_officer",
				},
				TaskTypes: []string{
					"financial_report", "risk_assessment", "decision_making",
					"policy_analysis", "compliance_check", "fundamental_analysis",
				},
			},
			PoolTechnicalLongSeq: {
				Flagship:     "gemini-2.5-pro",
				Alternatives: []string{"claude-sonnet-4", "qwen-max"},
				TargetRoles: []string{
					"technical_analyst", "news_hunter", "sentiment_analyst", "tool_engineer",
				},
				TaskTypes: []string{
					"technical_analysis", "news_analysis", "sentiment_analysis",
					"tool_development", "code_generation", "backtesting",
				},
			},
		},
		TaskPoolAffinity: map[string]map[string]float64{
			"financial_report":     {PoolDeepReasoning: 0.9, PoolTechnicalLongSeq: 0.1},
			"fundamental_analysis": {PoolDeepReasoning: 0.85, PoolTechnicalLongSeq: 0.15},
			"risk_assessment":      {PoolDeepReasoning: 0.9, PoolTechnicalLongSeq: 0.1},
			"decision_making":      {PoolDeepReasoning: 0.95, PoolTechnicalLongSeq: 0.05},
			"policy_analysis":      {PoolDeepReasoning: 0.85, PoolTechnicalLongSeq: 0.15},
			"compliance_check":     {PoolDeepReasoning: 0.8, PoolTechnicalLongSeq: 0.2},
			"technical_analysis":   {PoolDeepReasoning: 0.15, PoolTechnicalLongSeq: 0.85},
			"news_analysis":        {PoolDeepReasoning: 0.2, PoolTechnicalLongSeq: 0.8},
			"sentiment_analysis":   {PoolDeepReasoning: 0.25, PoolTechnicalLongSeq: 0.75},
			"tool_development":     {PoolDeepReasoning: 0.1, PoolTechnicalLongSeq: 0.9},
			"code_generation":      {PoolDeepReasoning: 0.05, PoolTechnicalLongSeq: 0.95},
			"backtesting":          {PoolDeepReasoning: 0.2, PoolTechnicalLongSeq: 0.8},
		},
		DefaultFallbackOrder: []string{"deepseek-v3", "gemini-2.5-flash", "gpt-4o-mini"},
		Aliases: map[string]string{
			"deepseek": "deepseek-v3",
			"gemini":   "gemini-2.5-pro",
			"qwen":     "qwen-max",
			"claude":   "claude-sonnet-4",
			"gpt-4":    "gpt-4o",
		},
	}
}
