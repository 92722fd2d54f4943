package routing

import (
	"context"
	"sort"

	"github.com/finsight-ai/finsight/pkg/models"
)

// scoredModel pairs a candidate with its weighted total and components.
type scoredModel struct {
	spec        models.ModelSpec
	total       float64
	quality     float64
	performance float64
	cost        float64
}

// qualityScore rates how well a model's capabilities fit the task signals.
// Components are averaged so the score stays in [0,1] no matter how many
// signals fire.
func qualityScore(m *models.ModelSpec, ch Characteristics) float64 {
	caps := []float64{
		m.CapabilityScore(models.CapFinancialAnalysis),
		m.CapabilityScore(models.CapReliability),
	}
	if ch.RequiresReasoning {
		caps = append(caps, m.CapabilityScore(models.CapReasoning))
	}
	if ch.CodeGeneration {
		caps = append(caps, m.CapabilityScore(models.CapCodeGeneration))
	}
	if ch.LongContext {
		caps = append(caps, m.CapabilityScore(models.CapLongContext))
	}
	if ch.RequiresSpeed {
		caps = append(caps, m.CapabilityScore(models.CapSpeed))
	}

	sum := 0.0
	for _, c := range caps {
		sum += c
	}
	score := sum / float64(len(caps))

	// Chinese-language content shifts weight toward Chinese capability in
	// proportion to how much of the text is Chinese.
	if ch.ChineseRatio > 0 {
		score = score*(1-ch.ChineseRatio*0.5) + m.CapabilityScore(models.CapChinese)*ch.ChineseRatio*0.5
	}
	return score
}

// scoreCandidates computes the weighted quality/performance/cost score for
// every candidate, best first. Cost is normalized against the most expensive
// candidate so the component is comparable across catalogs.
func (e *Engine) scoreCandidates(ctx context.Context, candidates []models.ModelSpec, taskType string, ch Characteristics) []scoredModel {
	maxCost := 0.0
	for i := range candidates {
		if candidates[i].CostPer1KTokens > maxCost {
			maxCost = candidates[i].CostPer1KTokens
		}
	}

	w := e.weights
	scored := make([]scoredModel, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]

		quality := qualityScore(m, ch)
		performance := 0.5*m.CapabilityScore(models.CapSpeed) +
			0.5*e.perf.historicalFactor(ctx, m.Name, taskType)
		cost := 1.0
		if maxCost > 0 {
			cost = 1.0 - m.CostPer1KTokens/maxCost
		}

		scored = append(scored, scoredModel{
			spec:        *m,
			total:       quality*w.Quality + performance*w.Performance + cost*w.Cost,
			quality:     quality,
			performance: performance,
			cost:        cost,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].total > scored[j].total })
	return scored
}
