package config

import "github.com/finsight-ai/finsight/pkg/models"

// ModelsYAML represents the models.yaml file structure. Entries extend or
// override the built-in seeds by model name.
type ModelsYAML struct {
	Models []models.ModelSpec `yaml:"models"`
}

// DefaultModelSeeds returns the built-in model catalog. Deploys extend it
// via models.yaml without code changes.
func DefaultModelSeeds() []models.ModelSpec {
	return []models.ModelSpec{
		{
			Name: "claude-sonnet-4", Provider: models.ProviderAnthropic, Kind: models.KindGeneral,
			CostPer1KTokens: 0.009, MaxOutputTokens: 8192, ContextWindow: 200000, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.88, models.CapCodeGeneration: 0.9, models.CapChinese: 0.75,
				models.CapLongContext: 0.85, models.CapFinancialAnalysis: 0.85, models.CapTechnicalAnalysis: 0.82,
				models.CapReliability: 0.92, models.CapCostEfficiency: 0.5, models.CapSpeed: 0.6,
			},
		},
		{
			Name: "claude-haiku-3-5", Provider: models.ProviderAnthropic, Kind: models.KindSpeed,
			CostPer1KTokens: 0.0024, MaxOutputTokens: 8192, ContextWindow: 200000, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.65, models.CapCodeGeneration: 0.7, models.CapChinese: 0.7,
				models.CapLongContext: 0.8, models.CapFinancialAnalysis: 0.6,
				models.CapReliability: 0.9, models.CapCostEfficiency: 0.85, models.CapSpeed: 0.92,
			},
		},
		{
			Name: "gpt-4o", Provider: models.ProviderOpenAI, Kind: models.KindGeneral,
			CostPer1KTokens: 0.00625, MaxOutputTokens: 16384, ContextWindow: 128000, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.85, models.CapMultimodal: 0.9, models.CapCodeGeneration: 0.85,
				models.CapChinese: 0.78, models.CapLongContext: 0.7, models.CapFinancialAnalysis: 0.8,
				models.CapTechnicalAnalysis: 0.8, models.CapReliability: 0.9, models.CapCostEfficiency: 0.55,
				models.CapSpeed: 0.7,
			},
		},
		{
			Name: "gpt-4o-mini", Provider: models.ProviderOpenAI, Kind: models.KindSpeed,
			CostPer1KTokens: 0.000375, MaxOutputTokens: 16384, ContextWindow: 128000, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.6, models.CapMultimodal: 0.7, models.CapCodeGeneration: 0.65,
				models.CapChinese: 0.7, models.CapFinancialAnalysis: 0.55,
				models.CapReliability: 0.88, models.CapCostEfficiency: 0.95, models.CapSpeed: 0.9,
			},
		},
		{
			Name: "o3-mini", Provider: models.ProviderOpenAI, Kind: models.KindReasoning,
			CostPer1KTokens: 0.00275, MaxOutputTokens: 65536, ContextWindow: 200000, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.93, models.CapCodeGeneration: 0.88, models.CapChinese: 0.7,
				models.CapLongContext: 0.75, models.CapFinancialAnalysis: 0.88, models.CapTimeSeries: 0.8,
				models.CapReliability: 0.88, models.CapCostEfficiency: 0.7, models.CapSpeed: 0.45,
			},
		},
		{
			Name: "deepseek-r1", Provider: models.ProviderGateway, Kind: models.KindThinking,
			CostPer1KTokens: 0.0015, MaxOutputTokens: 32768, ContextWindow: 65536, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.95, models.CapCodeGeneration: 0.85, models.CapChinese: 0.92,
				models.CapLongContext: 0.6, models.CapFinancialAnalysis: 0.9, models.CapTimeSeries: 0.82,
				models.CapReliability: 0.8, models.CapCostEfficiency: 0.85, models.CapSpeed: 0.35,
			},
		},
		{
			Name: "deepseek-v3", Provider: models.ProviderGateway, Kind: models.KindGeneral,
			CostPer1KTokens: 0.0006, MaxOutputTokens: 8192, ContextWindow: 65536, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.8, models.CapCodeGeneration: 0.82, models.CapChinese: 0.92,
				models.CapLongContext: 0.6, models.CapFinancialAnalysis: 0.78,
				models.CapReliability: 0.82, models.CapCostEfficiency: 0.92, models.CapSpeed: 0.75,
			},
		},
		{
			Name: "qwen-max", Provider: models.ProviderGateway, Kind: models.KindChinese,
			CostPer1KTokens: 0.0017, MaxOutputTokens: 8192, ContextWindow: 32768, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.82, models.CapCodeGeneration: 0.75, models.CapChinese: 0.96,
				models.CapLongContext: 0.5, models.CapFinancialAnalysis: 0.82, models.CapTechnicalAnalysis: 0.75,
				models.CapReliability: 0.82, models.CapCostEfficiency: 0.75, models.CapSpeed: 0.7,
			},
		},
		{
			Name: "gemini-2.5-pro", Provider: models.ProviderGateway, Kind: models.KindPremium,
			CostPer1KTokens: 0.00375, MaxOutputTokens: 65536, ContextWindow: 1048576, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.9, models.CapMultimodal: 0.92, models.CapCodeGeneration: 0.92,
				models.CapChinese: 0.85, models.CapLongContext: 0.98, models.CapFinancialAnalysis: 0.85,
				models.CapTechnicalAnalysis: 0.88, models.CapTimeSeries: 0.85,
				models.CapReliability: 0.85, models.CapCostEfficiency: 0.6, models.CapSpeed: 0.55,
			},
		},
		{
			Name: "gemini-2.5-flash", Provider: models.ProviderGateway, Kind: models.KindSpeed,
			CostPer1KTokens: 0.000475, MaxOutputTokens: 65536, ContextWindow: 1048576, SupportsStream: true,
			Capabilities: map[string]float64{
				models.CapReasoning: 0.72, models.CapMultimodal: 0.85, models.CapCodeGeneration: 0.78,
				models.CapChinese: 0.82, models.CapLongContext: 0.95, models.CapFinancialAnalysis: 0.65,
				models.CapReliability: 0.85, models.CapCostEfficiency: 0.92, models.CapSpeed: 0.93,
			},
		},
	}
}

// mergeModelSeeds overlays user entries onto the built-in seeds by name.
// User entries with a new name are appended in file order.
func mergeModelSeeds(builtin []models.ModelSpec, user []models.ModelSpec) []models.ModelSpec {
	merged := make([]models.ModelSpec, len(builtin))
	copy(merged, builtin)
	index := make(map[string]int, len(merged))
	for i, m := range merged {
		index[m.Name] = i
	}
	for _, m := range user {
		if i, ok := index[m.Name]; ok {
			merged[i] = m
			continue
		}
		index[m.Name] = len(merged)
		merged = append(merged, m)
	}
	return merged
}
