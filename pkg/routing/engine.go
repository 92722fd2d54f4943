// Package routing selects the best model for each agent task. Selection
// runs through a fixed pipeline: locked models, the policy filter,
// diversity override, flagship-pool routing, weighted scoring, and a fixed
// default fallback. Routing never fails; when nothing is available it
// returns the no_model sentinel and lets the caller decide.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// NoModel is the sentinel model name recorded when no model is available.
const NoModel = "no_model"

// Confidence levels per strategy.
const (
	lockedConfidence    = 0.95
	diversityConfidence = 0.60
	poolBaseConfidence  = 0.70
	poolMaxConfidence   = 0.95
	fallbackConfidence  = 0.30
)

// Default latency estimates when no history exists.
const (
	defaultTimeMs          = 3000
	defaultReasoningTimeMs = 6000
)

// estTokensDefault sizes cost estimates for tasks with no token estimate.
const estTokensDefault = 2000

// Request carries everything the engine needs for one routing decision.
type Request struct {
	SessionID       string
	AgentRole       string
	TaskDescription string
	Task            models.TaskSpec

	// Available is the health-filtered candidate set from the catalog.
	Available []models.ModelSpec

	// LockedModel is a request-scoped lock, dominant over session overrides
	// and static bindings.
	LockedModel string

	// Overrides are session-scoped settings, dominant over static bindings.
	Overrides *models.RuntimeOverrides
}

// Engine is the routing engine. Safe for concurrent use.
type Engine struct {
	cfg       *config.RoutingConfig
	weights   config.RoutingWeights
	agents    *config.AgentRegistry
	store     store.Store
	logger    *slog.Logger
	perfTTL   time.Duration
	usage     *usageCounter
	perf      *perfTracker
	smart     bool
	diversity struct {
		enabled   bool
		threshold float64
		weight    float64
	}
}

// New creates a routing engine over the loaded configuration and store.
func New(cfg *config.Config, st store.Store) *Engine {
	e := &Engine{
		cfg:     cfg.Routing,
		weights: cfg.Settings.RoutingWeights,
		agents:  cfg.Agents,
		store:   st,
		logger:  slog.With("component", "routing_engine"),
		perfTTL: cfg.Settings.AnalysisTTL,
		usage:   newUsageCounter(),
		smart:   cfg.Settings.MultiModelEnabled,
	}
	e.diversity.enabled = cfg.Settings.DiversityEnabled
	e.diversity.threshold = cfg.Settings.DiversityThreshold
	e.diversity.weight = cfg.Settings.DiversityWeight
	e.perf = newPerfTracker(e)
	return e
}

// RouteTask picks a model for the request. It never returns an error: any
// internal failure degrades to the default fallback, and an empty candidate
// set yields the no_model sentinel (Model == nil).
func (e *Engine) RouteTask(ctx context.Context, req Request) (sel *models.ModelSelection) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Routing panicked, degrading to default fallback",
				"agent_role", req.AgentRole, "panic", r)
			sel = e.defaultFallback(req.Available, "recovered from internal routing failure")
		}
		if sel.Model != nil {
			e.usage.Record(sel.Model.Name)
		}
		e.recordDecision(ctx, req, sel)
	}()

	sel = e.route(ctx, req)
	return sel
}

func (e *Engine) route(ctx context.Context, req Request) *models.ModelSelection {
	if len(req.Available) == 0 {
		e.logger.Warn("No models available for routing", "agent_role", req.AgentRole)
		return e.noModelSelection()
	}

	if !e.smart {
		return e.defaultFallback(req.Available, "multi-model routing disabled")
	}

	ch := AnalyzeTask(req.TaskDescription, req.Task)
	candidates := e.policyFilter(req)

	// 1. Locked model short-circuits everything else, but only when the
	//    lock survives the policy filter.
	if locked := e.lockedModel(req); locked != "" {
		if spec := findModel(candidates, locked); spec != nil {
			return e.finishSelection(ctx, &models.ModelSelection{
				Model:      spec,
				Confidence: lockedConfidence,
				Reasoning:  fmt.Sprintf("model %s locked for %s", locked, req.AgentRole),
				Strategy:   models.StrategyLocked,
			}, req.Task.TaskType, ch)
		}
		e.logger.Warn("Locked model not among allowed candidates, continuing pipeline",
			"agent_role", req.AgentRole, "locked_model", locked)
	}

	// 2. Diversity override when one model dominates recent selections.
	if sel := e.diversitySelection(ctx, candidates, req.Task.TaskType, ch); sel != nil {
		return e.finishSelection(ctx, sel, req.Task.TaskType, ch)
	}

	// 3. Flagship-pool routing.
	if match, ok := e.matchPool(req.AgentRole, req.Task.TaskType, ch); ok {
		if spec, confidence, reasoning, alts := e.poolSelection(match, candidates, ch); spec != nil {
			return e.finishSelection(ctx, &models.ModelSelection{
				Model:        spec,
				Confidence:   confidence,
				Reasoning:    reasoning,
				Alternatives: alts,
				Strategy:     models.StrategyFlagshipPool,
			}, req.Task.TaskType, ch)
		}
	}

	// 4. Traditional weighted scoring over the remaining candidates.
	if scored := e.scoreCandidates(ctx, candidates, req.Task.TaskType, ch); len(scored) > 0 {
		top := scored[0]
		var alts []string
		for _, s := range scored[1:] {
			alts = append(alts, s.spec.Name)
			if len(alts) == 3 {
				break
			}
		}
		confidence := 0.5 + top.total*0.4
		if confidence > 0.9 {
			confidence = 0.9
		}
		return e.finishSelection(ctx, &models.ModelSelection{
			Model:      &top.spec,
			Confidence: confidence,
			Reasoning: fmt.Sprintf("weighted score %.3f (quality %.2f, performance %.2f, cost %.2f)",
				top.total, top.quality, top.performance, top.cost),
			Alternatives: alts,
			Strategy:     models.StrategyTraditional,
		}, req.Task.TaskType, ch)
	}

	// 5. Fixed default fallback.
	return e.defaultFallback(req.Available, "no routing strategy produced a candidate")
}

// lockedModel resolves the lock in dominance order: request, session
// override, static binding. Names are canonicalized before matching.
func (e *Engine) lockedModel(req Request) string {
	if req.LockedModel != "" {
		return e.cfg.CanonicalModelName(req.LockedModel)
	}
	if locked := req.Overrides.LockedModelFor(req.AgentRole); locked != "" {
		return e.cfg.CanonicalModelName(locked)
	}
	if locked := e.agents.Binding(req.AgentRole).LockedModel; locked != "" {
		return e.cfg.CanonicalModelName(locked)
	}
	return ""
}

// policyFilter applies the two policy layers: per-agent allow/deny, then
// per-task-type allow/deny. An empty survivor set falls back to the full
// available list with a warning rather than failing the task.
func (e *Engine) policyFilter(req Request) []models.ModelSpec {
	binding := e.agents.Binding(req.AgentRole)
	taskBinding := e.agents.TaskBinding(req.Task.TaskType)

	// Session override replaces the agent's static allow list entirely.
	agentAllow := req.Overrides.AllowedModelsFor(req.AgentRole)
	if agentAllow == nil {
		agentAllow = binding.AllowModels
	}

	out := req.Available
	out = applyAllow(out, e.canonicalSet(agentAllow))
	out = applyDeny(out, e.canonicalSet(binding.DenyModels))
	out = applyAllow(out, e.canonicalSet(taskBinding.AllowModels))
	out = applyDeny(out, e.canonicalSet(taskBinding.DenyModels))

	if len(out) == 0 {
		e.logger.Warn("Policy filter removed every candidate, ignoring policy for this task",
			"agent_role", req.AgentRole, "task_type", req.Task.TaskType)
		return req.Available
	}
	return out
}

func (e *Engine) canonicalSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[e.cfg.CanonicalModelName(name)] = true
	}
	return set
}

func applyAllow(specs []models.ModelSpec, allow map[string]bool) []models.ModelSpec {
	if allow == nil {
		return specs
	}
	var out []models.ModelSpec
	for _, m := range specs {
		if allow[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

func applyDeny(specs []models.ModelSpec, deny map[string]bool) []models.ModelSpec {
	if deny == nil {
		return specs
	}
	var out []models.ModelSpec
	for _, m := range specs {
		if !deny[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

// diversitySelection fires when the dominant model's share of recent
// selections exceeds the dynamic threshold. The threshold adapts to the
// candidate count so small catalogs do not thrash.
func (e *Engine) diversitySelection(ctx context.Context, candidates []models.ModelSpec, taskType string, ch Characteristics) *models.ModelSelection {
	if !e.diversity.enabled || len(candidates) < 2 {
		return nil
	}

	dominant, share := e.usage.Dominant()
	if dominant == "" {
		return nil
	}
	threshold := e.diversity.threshold
	if dynamic := 1.0/float64(len(candidates)) + 0.15; dynamic > threshold {
		threshold = dynamic
	}
	if share <= threshold {
		return nil
	}

	// Blend under-use with capability fit so diversity never picks a model
	// that cannot do the job.
	w := e.diversity.weight
	var best *models.ModelSpec
	var bestScore float64
	for i := range candidates {
		m := &candidates[i]
		usageScore := 1.0 - e.usage.Share(m.Name)
		score := usageScore*w + qualityScore(m, ch)*(1.0-w)
		if best == nil || score > bestScore {
			best, bestScore = m, score
		}
	}

	e.logger.Info("Diversity override engaged",
		"dominant_model", dominant,
		"dominant_share", share,
		"threshold", threshold,
		"selected", best.Name)
	return &models.ModelSelection{
		Model:      best,
		Confidence: diversityConfidence,
		Reasoning: fmt.Sprintf("diversity override: %s holds %.0f%% of recent selections (threshold %.0f%%)",
			dominant, share*100, threshold*100),
		Strategy: models.StrategyDiversity,
	}
}

// defaultFallback walks the fixed-priority list and takes the first model
// present in the available set, or the first available model outright.
func (e *Engine) defaultFallback(available []models.ModelSpec, reason string) *models.ModelSelection {
	if len(available) == 0 {
		return e.noModelSelection()
	}

	spec := findFirst(available, e.cfg.DefaultFallbackOrder)
	if spec == nil {
		spec = &available[0]
	}
	return &models.ModelSelection{
		SelectionID:     uuid.NewString(),
		Model:           spec,
		Confidence:      fallbackConfidence,
		Reasoning:       reason,
		Strategy:        models.StrategyFallback,
		EstimatedCost:   spec.CostPer1KTokens * float64(estTokensDefault) / 1000.0,
		EstimatedTimeMs: defaultTimeMs,
	}
}

func (e *Engine) noModelSelection() *models.ModelSelection {
	return &models.ModelSelection{
		SelectionID: uuid.NewString(),
		Confidence:  0,
		Reasoning:   "no models available",
		Strategy:    models.StrategyFallback,
	}
}

// finishSelection stamps the selection id and fills the cost and latency
// estimates shared by every strategy.
func (e *Engine) finishSelection(ctx context.Context, sel *models.ModelSelection, taskType string, ch Characteristics) *models.ModelSelection {
	sel.SelectionID = uuid.NewString()

	tokens := ch.TokenBudget
	if tokens <= 0 {
		tokens = estTokensDefault
	}
	sel.EstimatedCost = sel.Model.CostPer1KTokens * float64(tokens) / 1000.0

	if avg := e.perf.avgResponseTimeMs(ctx, sel.Model.Name, taskType); avg > 0 {
		sel.EstimatedTimeMs = int64(avg)
	} else if sel.Model.IsReasoningKind() {
		sel.EstimatedTimeMs = defaultReasoningTimeMs
	} else {
		sel.EstimatedTimeMs = defaultTimeMs
	}
	return sel
}

// recordDecision appends one routing_decisions row per RouteTask call.
// Persistence failures are logged and swallowed; routing stays infallible.
func (e *Engine) recordDecision(ctx context.Context, req Request, sel *models.ModelSelection) {
	rec := models.RoutingDecisionRecord{
		Timestamp:   time.Now().Unix(),
		SessionID:   req.SessionID,
		AgentRole:   req.AgentRole,
		TaskType:    req.Task.TaskType,
		ModelName:   NoModel,
		Strategy:    sel.Strategy,
		Confidence:  sel.Confidence,
		Reasoning:   sel.Reasoning,
		SelectionID: sel.SelectionID,
	}
	if sel.Model != nil {
		rec.ModelName = sel.Model.Name
		rec.Provider = sel.Model.Provider
	}

	if err := store.AppendJSON(ctx, e.store, store.StreamRoutingDecisions, rec); err != nil {
		e.logger.Warn("Failed to record routing decision",
			"session_id", req.SessionID, "model", rec.ModelName, "error", err)
	}
}

// RecordPerformance folds an execution outcome into the per-(model, task
// type) moving averages used by history-aware scoring.
func (e *Engine) RecordPerformance(ctx context.Context, model, taskType string, responseTimeMs int64, success bool) {
	e.perf.observe(ctx, model, taskType, responseTimeMs, success)
}

// Decisions returns the persisted routing decision log, oldest first.
// Corrupt rows are skipped.
func (e *Engine) Decisions(ctx context.Context) ([]models.RoutingDecisionRecord, error) {
	raw, err := e.store.Stream(ctx, store.StreamRoutingDecisions)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoutingDecisionRecord, 0, len(raw))
	for _, data := range raw {
		var rec models.RoutingDecisionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			e.logger.Warn("Skipping corrupt routing decision", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func findModel(specs []models.ModelSpec, name string) *models.ModelSpec {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}

func findFirst(specs []models.ModelSpec, order []string) *models.ModelSpec {
	for _, name := range order {
		if spec := findModel(specs, name); spec != nil {
			return spec
		}
	}
	return nil
}
