package routing

import (
	"fmt"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/models"
)

// poolMatch is the outcome of mapping a task onto a model pool.
type poolMatch struct {
	name      string
	pool      config.PoolConfig
	roleMatch bool    // agent role is a declared target of the pool
	affinity  float64 // task-type affinity row value, 0 when absent
}

// matchPool maps (agent role, task type, signals) onto a pool. The strongest
// signal wins: declared target roles, then the task affinity table, then
// task signals. Returns false when no pool applies.
func (e *Engine) matchPool(agentRole, taskType string, ch Characteristics) (poolMatch, bool) {
	// 1. Role-targeted pool.
	for name, pool := range e.cfg.Pools {
		for _, role := range pool.TargetRoles {
			if role == agentRole {
				return poolMatch{
					name:      name,
					pool:      pool,
					roleMatch: true,
					affinity:  e.cfg.TaskPoolAffinity[taskType][name],
				}, true
			}
		}
	}

	// 2. Task-affinity table: the pool with the highest row value wins.
	if row, ok := e.cfg.TaskPoolAffinity[taskType]; ok {
		var best string
		var bestAffinity float64
		for name, affinity := range row {
			if affinity > bestAffinity || (affinity == bestAffinity && name < best) {
				best, bestAffinity = name, affinity
			}
		}
		if pool, ok := e.cfg.Pools[best]; ok && bestAffinity > 0 {
			return poolMatch{name: best, pool: pool, affinity: bestAffinity}, true
		}
	}

	// 3. Signal-driven defaults for tasks outside the affinity table.
	if ch.RequiresReasoning {
		if pool, ok := e.cfg.Pools[config.PoolDeepReasoning]; ok {
			return poolMatch{name: config.PoolDeepReasoning, pool: pool}, true
		}
	}
	if ch.CodeGeneration || ch.LongContext {
		if pool, ok := e.cfg.Pools[config.PoolTechnicalLongSeq]; ok {
			return poolMatch{name: config.PoolTechnicalLongSeq, pool: pool}, true
		}
	}
	return poolMatch{}, false
}

// poolSelection picks from the matched pool: the flagship when available,
// otherwise the first pool alternative among the candidates. Confidence
// starts at the pool base and earns boosts for each matched signal, capped
// below the locked-model level.
func (e *Engine) poolSelection(match poolMatch, candidates []models.ModelSpec, ch Characteristics) (*models.ModelSpec, float64, string, []string) {
	byName := make(map[string]*models.ModelSpec, len(candidates))
	for i := range candidates {
		byName[candidates[i].Name] = &candidates[i]
	}

	ordered := append([]string{match.pool.Flagship}, match.pool.Alternatives...)
	var chosen *models.ModelSpec
	var rest []string
	for _, name := range ordered {
		spec, ok := byName[name]
		if !ok {
			continue
		}
		if chosen == nil {
			chosen = spec
			continue
		}
		rest = append(rest, name)
	}
	if chosen == nil {
		return nil, 0, "", nil
	}

	confidence := poolBaseConfidence
	reasons := fmt.Sprintf("pool %s", match.name)
	if match.roleMatch {
		confidence += 0.15
		reasons += ", role-targeted"
	}
	if match.affinity > 0 {
		confidence += match.affinity * 0.15
		reasons += fmt.Sprintf(", task affinity %.2f", match.affinity)
	}
	switch {
	case match.name == config.PoolDeepReasoning && (ch.RequiresReasoning || ch.Complexity == models.ComplexityHigh):
		confidence += 0.10
		reasons += ", deep reasoning fit"
	case match.name == config.PoolTechnicalLongSeq && ch.LongContext:
		confidence += 0.15
		reasons += ", long-context fit"
	case match.name == config.PoolTechnicalLongSeq && ch.CodeGeneration:
		confidence += 0.10
		reasons += ", code-generation fit"
	}
	if confidence > poolMaxConfidence {
		confidence = poolMaxConfidence
	}

	if chosen.Name == match.pool.Flagship {
		reasons = "flagship of " + reasons
	} else {
		reasons = fmt.Sprintf("%s standing in for unavailable flagship %s", reasons, match.pool.Flagship)
	}
	return chosen, confidence, reasons, rest
}
