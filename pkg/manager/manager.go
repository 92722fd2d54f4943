// Package manager executes single agent tasks end to end: budget gate,
// model selection, the fallback chain with backoff and circuit breaking,
// usage accounting, and the simplified last-resort mode.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/finsight-ai/finsight/pkg/catalog"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
	"github.com/finsight-ai/finsight/pkg/routing"
	"github.com/finsight-ai/finsight/pkg/usage"
)

// maxFallbackAlternates caps the alternates tried after the primary model.
const maxFallbackAlternates = 3

// simplifiedAttempts bounds the last-resort retry loop.
const simplifiedAttempts = 3

// simplifiedPrefix marks results produced in degraded mode.
const simplifiedPrefix = "[simplified mode] "

// Request describes one task execution.
type Request struct {
	SessionID  string
	AgentRole  string
	Prompt     string
	TaskType   string
	Complexity models.Complexity
	Context    map[string]any

	// ModelOverride pins the model for this request. Aliases and
	// "provider/name" forms are accepted.
	ModelOverride string

	// FallbackChain is a per-request alternate list tried ahead of the
	// agent's configured chain. Aliases are accepted.
	FallbackChain []string

	// ProviderPref narrows selection to one provider when it has any
	// healthy models.
	ProviderPref models.Provider

	// Overrides are session-scoped routing overrides.
	Overrides *models.RuntimeOverrides

	// Options carries streaming and sampling options into the adapter.
	Options provider.Options

	// BudgetCap overrides the configured per-session cap. Zero uses the
	// configured default; negative disables the gate.
	BudgetCap float64

	// DisableFallback restricts execution to the primary selection: no
	// alternate models, no simplified mode. Used by degraded collaboration.
	DisableFallback bool
}

// Manager coordinates task execution across providers.
type Manager struct {
	catalog  *catalog.Catalog
	router   *routing.Engine
	usage    *usage.Tracker
	routing  *config.RoutingConfig
	settings *config.Settings
	agents   *config.AgentRegistry
	adapters map[models.Provider]provider.Adapter
	breakers *breakerSet
	logger   *slog.Logger

	// backoffBase is 1s in production; tests shrink it.
	backoffBase time.Duration
}

// New creates a manager over the loaded configuration and the registered
// provider adapters.
func New(cfg *config.Config, cat *catalog.Catalog, router *routing.Engine, tracker *usage.Tracker, adapters ...provider.Adapter) *Manager {
	m := &Manager{
		catalog:     cat,
		router:      router,
		usage:       tracker,
		routing:     cfg.Routing,
		settings:    cfg.Settings,
		agents:      cfg.Agents,
		adapters:    make(map[models.Provider]provider.Adapter, len(adapters)),
		breakers:    newBreakerSet(),
		logger:      slog.With("component", "model_manager"),
		backoffBase: time.Second,
	}
	for _, a := range adapters {
		m.adapters[a.Name()] = a
	}
	return m
}

// ExecuteTask runs one agent task end to end. It never returns an error:
// failures come back as an unsuccessful TaskResult with a taxonomy kind and
// a user-friendly message.
func (m *Manager) ExecuteTask(ctx context.Context, req Request) *models.TaskResult {
	taskID := uuid.NewString()
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, confidence := m.execute(ctx, taskID, req)

	// Every terminal result updates the session accounting, success or not.
	m.usage.RecordTask(req.SessionID, result, confidence)
	return result
}

// execute runs the budget gate, selection, and fallback ladder. It returns
// the terminal result along with the selection confidence that produced it.
func (m *Manager) execute(ctx context.Context, taskID string, req Request) (*models.TaskResult, float64) {
	// 1. Budget gate before any adapter call.
	budgetCap := req.BudgetCap
	if budgetCap == 0 {
		budgetCap = m.settings.MaxCostPerSession
	}
	if ok, spent := m.usage.CheckBudget(req.SessionID, budgetCap); !ok {
		m.logger.Warn("Session budget exhausted, rejecting task",
			"session_id", req.SessionID, "spent", spent, "cap", budgetCap)
		return userFacing(models.FailedTask(taskID, models.ErrKindBudgetExceeded,
			fmt.Sprintf("session budget exhausted: spent %.4f of %.4f USD", spent, budgetCap))), 0
	}

	// 2. Model selection: explicit override, else the routing engine.
	task := models.TaskSpec{
		TaskType:        req.TaskType,
		Complexity:      req.Complexity,
		EstimatedTokens: EstimateTokens(req.Prompt),
		Context:         req.Context,
	}
	selection := m.selectModel(ctx, req, task)
	if selection.Model == nil {
		return userFacing(models.FailedTask(taskID, models.ErrKindNoModelAvailable,
			"no model available for execution")), 0
	}

	// 3. Fallback chain over the primary and its alternates.
	result := m.executeChain(ctx, taskID, req, task, selection)
	if result.Success {
		return result, selection.Confidence
	}
	if result.ErrorKind.Terminal() || req.DisableFallback {
		return userFacing(result), selection.Confidence
	}

	// 4. Simplified last-resort fallback.
	if simplified := m.executeSimplified(ctx, taskID, req); simplified != nil {
		return simplified, selection.Confidence
	}
	return userFacing(result), selection.Confidence
}

// selectModel resolves the override (aliases included) or delegates to the
// routing engine over the breaker-filtered available set.
func (m *Manager) selectModel(ctx context.Context, req Request, task models.TaskSpec) *models.ModelSelection {
	available := m.availableModels()

	// Provider preference narrows the pool, but never to nothing.
	if req.ProviderPref != "" {
		var preferred []models.ModelSpec
		for _, spec := range available {
			if spec.Provider == req.ProviderPref {
				preferred = append(preferred, spec)
			}
		}
		if len(preferred) > 0 {
			available = preferred
		} else {
			m.logger.Warn("Preferred provider has no available models, ignoring preference",
				"provider_pref", req.ProviderPref)
		}
	}

	if req.ModelOverride != "" {
		name := m.routing.CanonicalModelName(req.ModelOverride)
		if spec, ok := m.catalog.Get(name); ok {
			return &models.ModelSelection{
				SelectionID: uuid.NewString(),
				Model:       &spec,
				Confidence:  1.0,
				Reasoning:   fmt.Sprintf("explicit override %s", req.ModelOverride),
				Strategy:    models.StrategyLocked,
			}
		}
		m.logger.Warn("Override model not in catalog, routing normally",
			"override", req.ModelOverride, "canonical", name)
	}

	return m.router.RouteTask(ctx, routing.Request{
		SessionID:       req.SessionID,
		AgentRole:       req.AgentRole,
		TaskDescription: req.Prompt,
		Task:            task,
		Available:       available,
		Overrides:       req.Overrides,
	})
}

// availableModels is the health-filtered catalog minus tripped breakers.
func (m *Manager) availableModels() []models.ModelSpec {
	var out []models.ModelSpec
	for _, spec := range m.catalog.AllAvailable() {
		if m.breakers.open(spec.Provider, spec.Name) {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// attemptOrder builds the chain: primary, router alternates, the agent's
// configured fallback chain, deduped, alternates capped.
func (m *Manager) attemptOrder(req Request, selection *models.ModelSelection) []string {
	if req.DisableFallback {
		return []string{selection.Model.Name}
	}
	order := []string{selection.Model.Name}
	seen := map[string]bool{selection.Model.Name: true}

	add := func(name string) {
		name = m.routing.CanonicalModelName(name)
		if seen[name] || len(order) > maxFallbackAlternates {
			return
		}
		seen[name] = true
		order = append(order, name)
	}
	for _, name := range selection.Alternatives {
		add(name)
	}
	for _, name := range req.FallbackChain {
		add(name)
	}
	for _, name := range m.agents.Binding(req.AgentRole).FallbackChain {
		add(name)
	}
	for _, name := range m.routing.DefaultFallbackOrder {
		add(name)
	}
	return order
}

// executeChain walks the attempt order with exponential backoff between
// attempts, recording performance feedback for every try.
func (m *Manager) executeChain(ctx context.Context, taskID string, req Request, task models.TaskSpec, selection *models.ModelSelection) *models.TaskResult {
	var last *models.TaskResult
	for i, name := range m.attemptOrder(req, selection) {
		if i > 0 {
			if err := m.backoff(ctx, i); err != nil {
				return models.FailedTask(taskID, models.ErrKindCancelled, "task cancelled during backoff")
			}
		}

		result := m.executeOnce(ctx, taskID, req, task, name)
		m.router.RecordPerformance(ctx, name, req.TaskType, result.ExecutionTimeMs, result.Success)
		if result.Success {
			m.recordUsage(ctx, req, result)
			return result
		}
		last = result
		// Only retryable failures justify burning another model in the
		// chain; everything else surfaces immediately.
		if !result.ErrorKind.Retryable() {
			return result
		}
		m.logger.Warn("Model attempt failed, trying next in chain",
			"session_id", req.SessionID,
			"model", name,
			"attempt", i+1,
			"error_kind", result.ErrorKind)
	}
	if last == nil {
		last = models.FailedTask(taskID, models.ErrKindNoModelAvailable, "fallback chain is empty")
	}
	return last
}

// executeOnce runs one model attempt through its circuit breaker.
func (m *Manager) executeOnce(ctx context.Context, taskID string, req Request, task models.TaskSpec, name string) *models.TaskResult {
	spec, ok := m.catalog.Get(name)
	if !ok {
		return models.FailedTask(taskID, models.ErrKindModelUnavailable,
			fmt.Sprintf("model %s not in catalog", name))
	}
	adapter, ok := m.adapters[spec.Provider]
	if !ok {
		return models.FailedTask(taskID, models.ErrKindModelUnavailable,
			fmt.Sprintf("no adapter registered for provider %s", spec.Provider))
	}

	cb := m.breakers.get(spec.Provider, spec.Name)
	started := time.Now()
	out, err := cb.Execute(func() (any, error) {
		return adapter.ExecuteTask(ctx, spec, req.Prompt, task, req.Options)
	})
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		kind := provider.KindOf(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			kind = models.ErrKindModelUnavailable
		}
		result := models.FailedTask(taskID, kind, err.Error())
		result.ExecutionTimeMs = elapsed
		return result
	}

	res := out.(*provider.Result)
	tokens := provider.FillUsage(res.Usage, req.Prompt, res.Text)
	return &models.TaskResult{
		TaskID:          taskID,
		Text:            res.Text,
		ModelUsed:       &spec,
		ExecutionTimeMs: elapsed,
		ActualCost:      provider.CostFor(spec, tokens.TotalTokens),
		TokenUsage:      tokens,
		Success:         true,
	}
}

// executeSimplified is the last resort: a short role-template prompt against
// the cheapest reliable candidates, degraded sampling, bounded retries.
// Returns nil when even simplified mode fails.
func (m *Manager) executeSimplified(ctx context.Context, taskID string, req Request) *models.TaskResult {
	candidates := m.simplifiedCandidates()
	if len(candidates) == 0 {
		return nil
	}

	prompt := m.simplifiedPrompt(req)
	temp := 0.7
	task := models.TaskSpec{
		TaskType:        req.TaskType,
		Complexity:      models.ComplexityLow,
		EstimatedTokens: EstimateTokens(prompt),
	}
	opts := provider.Options{Temperature: &temp, MaxTokens: 1000}

	m.logger.Warn("Entering simplified fallback mode",
		"session_id", req.SessionID, "agent_role", req.AgentRole)

	for i := 0; i < simplifiedAttempts; i++ {
		if i > 0 {
			if err := m.backoff(ctx, i); err != nil {
				return nil
			}
		}
		name := candidates[i%len(candidates)]
		simplifiedReq := req
		simplifiedReq.Prompt = prompt
		simplifiedReq.Options = opts

		result := m.executeOnce(ctx, taskID, simplifiedReq, task, name)
		m.router.RecordPerformance(ctx, name, req.TaskType, result.ExecutionTimeMs, result.Success)
		if result.Success {
			result.Text = simplifiedPrefix + result.Text
			m.recordUsage(ctx, req, result)
			return result
		}
		if result.ErrorKind.Terminal() {
			return nil
		}
	}
	return nil
}

// simplifiedCandidates is the default fallback order filtered to what is
// actually callable right now.
func (m *Manager) simplifiedCandidates() []string {
	var out []string
	for _, name := range m.routing.DefaultFallbackOrder {
		spec, ok := m.catalog.Get(name)
		if !ok || !m.catalog.Healthy(spec.Provider) || m.breakers.open(spec.Provider, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// simplifiedPrompt renders the 1-3 sentence role template.
func (m *Manager) simplifiedPrompt(req Request) string {
	display := req.AgentRole
	if role, err := m.agents.Role(req.AgentRole); err == nil {
		display = role.DisplayName
	}
	// Truncate on a rune boundary: prompts are often CJK-heavy and a byte
	// cut could split a multi-byte character.
	prompt := req.Prompt
	if len(prompt) > 500 {
		cut := 500
		for cut > 0 && !utf8.RuneStart(prompt[cut]) {
			cut--
		}
		prompt = prompt[:cut]
	}
	return fmt.Sprintf(
		"You are the %s. Systems are degraded, so answer in 1-3 sentences with only your single most important conclusion. Request: %s",
		display, prompt)
}

// backoff sleeps 1s·2^(i-1) before attempt i, cancellable via ctx.
func (m *Manager) backoff(ctx context.Context, attempt int) error {
	delay := m.backoffBase << (attempt - 1)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recordUsage writes the usage record for a successful terminal result.
func (m *Manager) recordUsage(ctx context.Context, req Request, result *models.TaskResult) {
	m.usage.Record(ctx, models.UsageRecord{
		Provider:      result.ModelUsed.Provider,
		ModelName:     result.ModelUsed.Name,
		InputTokens:   result.TokenUsage.PromptTokens,
		OutputTokens:  result.TokenUsage.CompletionTokens,
		TotalTokens:   result.TokenUsage.TotalTokens,
		EstimatedCost: result.ActualCost,
		SessionID:     req.SessionID,
		AnalysisType:  req.TaskType,
	})
}

// userFacing augments a failure with the canned user-friendly message.
func userFacing(result *models.TaskResult) *models.TaskResult {
	if result.Success || result.ErrorKind == models.ErrKindNone {
		return result
	}
	ue := models.NewUserError(result.ErrorKind, result.ErrorMessage)
	if ue.Suggestion != "" {
		result.ErrorMessage = result.ErrorMessage + " (" + ue.Suggestion + ")"
	}
	return result
}
