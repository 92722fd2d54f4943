package routing

import (
	"context"
	"errors"
	"sync"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// perfTracker maintains moving-average performance per (model, task type),
// cached in memory and persisted to the store so history survives restarts.
type perfTracker struct {
	engine *Engine

	mu    sync.Mutex
	cache map[string]*models.ModelPerf
}

func newPerfTracker(e *Engine) *perfTracker {
	return &perfTracker{engine: e, cache: make(map[string]*models.ModelPerf)}
}

func perfKey(model, taskType string) string {
	return store.PrefixModelPerf + model + "," + taskType
}

// get returns the cached record, loading it from the store on first use.
// A fresh record is returned when no history exists.
func (p *perfTracker) get(ctx context.Context, model, taskType string) *models.ModelPerf {
	key := perfKey(model, taskType)

	p.mu.Lock()
	defer p.mu.Unlock()

	if perf, ok := p.cache[key]; ok {
		return perf
	}

	perf := &models.ModelPerf{}
	if err := store.GetJSON(ctx, p.engine.store, key, perf); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.engine.logger.Warn("Failed to load model performance history",
			"model", model, "task_type", taskType, "error", err)
	}
	p.cache[key] = perf
	return perf
}

// observe folds one execution into the record and persists the new averages.
func (p *perfTracker) observe(ctx context.Context, model, taskType string, responseTimeMs int64, success bool) {
	perf := p.get(ctx, model, taskType)

	p.mu.Lock()
	perf.Observe(responseTimeMs, success)
	snapshot := *perf
	p.mu.Unlock()

	key := perfKey(model, taskType)
	if err := store.SetJSON(ctx, p.engine.store, key, snapshot, p.engine.perfTTL); err != nil {
		p.engine.logger.Warn("Failed to persist model performance",
			"model", model, "task_type", taskType, "error", err)
	}
}

// historicalFactor returns the history score for scoring, or the neutral
// 0.5 when no samples exist yet.
func (p *perfTracker) historicalFactor(ctx context.Context, model, taskType string) float64 {
	perf := p.get(ctx, model, taskType)

	p.mu.Lock()
	defer p.mu.Unlock()
	if perf.SampleCount == 0 {
		return 0.5
	}
	return perf.HistoricalFactor()
}

// avgResponseTimeMs returns the observed average latency, 0 without history.
func (p *perfTracker) avgResponseTimeMs(ctx context.Context, model, taskType string) float64 {
	perf := p.get(ctx, model, taskType)

	p.mu.Lock()
	defer p.mu.Unlock()
	if perf.SampleCount == 0 {
		return 0
	}
	return perf.AvgResponseTimeMs
}
