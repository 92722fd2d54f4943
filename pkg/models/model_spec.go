package models

// Provider identifies an LLM provider backend.
type Provider string

// Supported providers.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGateway   Provider = "gateway"
)

// ModelKind classifies a model's primary strength.
type ModelKind string

// Model kinds.
const (
	KindReasoning  ModelKind = "reasoning"
	KindSpeed      ModelKind = "speed"
	KindGeneral    ModelKind = "general"
	KindPremium    ModelKind = "premium"
	KindCoder      ModelKind = "coder"
	KindThinking   ModelKind = "thinking"
	KindAgent      ModelKind = "agent"
	KindMultimodal ModelKind = "multimodal"
	KindChinese    ModelKind = "chinese"
	KindBalanced   ModelKind = "balanced"
)

// Capability names recognized by the catalog. Scores for unknown
// capabilities are always 0.
const (
	CapReasoning         = "reasoning"
	CapMultimodal        = "multimodal"
	CapLongContext       = "long_context"
	CapChinese           = "chinese"
	CapFinancialAnalysis = "financial_analysis"
	CapTechnicalAnalysis = "technical_analysis"
	CapTimeSeries        = "time_series"
	CapCodeGeneration    = "code_generation"
	CapReliability       = "reliability"
	CapCostEfficiency    = "cost_efficiency"
	CapSpeed             = "speed"
)

// RecognizedCapabilities lists every capability name the catalog scores.
var RecognizedCapabilities = []string{
	CapReasoning, CapMultimodal, CapLongContext, CapChinese,
	CapFinancialAnalysis, CapTechnicalAnalysis, CapTimeSeries,
	CapCodeGeneration, CapReliability, CapCostEfficiency, CapSpeed,
}

// ModelSpec describes a single model offered by a provider.
// Specs are loaded at startup and constant for the process lifetime.
type ModelSpec struct {
	Name            string             `json:"name" yaml:"name"`
	Provider        Provider           `json:"provider" yaml:"provider"`
	Kind            ModelKind          `json:"kind" yaml:"kind"`
	CostPer1KTokens float64            `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	MaxOutputTokens int                `json:"max_output_tokens" yaml:"max_output_tokens"`
	ContextWindow   int                `json:"context_window" yaml:"context_window"`
	SupportsStream  bool               `json:"supports_streaming" yaml:"supports_streaming"`
	Capabilities    map[string]float64 `json:"capabilities" yaml:"capabilities"`
}

// CapabilityScore returns the model's score for a capability, 0 if unknown.
func (m *ModelSpec) CapabilityScore(capability string) float64 {
	if m == nil || m.Capabilities == nil {
		return 0
	}
	return m.Capabilities[capability]
}

// IsReasoningKind reports whether the model is a deep-reasoning variant.
// Reasoning and thinking models get longer default timeouts.
func (m *ModelSpec) IsReasoningKind() bool {
	return m.Kind == KindReasoning || m.Kind == KindThinking || m.Kind == KindPremium
}
