// Package orchestrator is the service root: it owns the worker pool, the
// progress and lifecycle registries, and the submission queue, and exposes
// the orchestration API the HTTP layer serves.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finsight-ai/finsight/pkg/catalog"
	"github.com/finsight-ai/finsight/pkg/collab"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/lifecycle"
	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/progress"
	"github.com/finsight-ai/finsight/pkg/store"
	"github.com/finsight-ai/finsight/pkg/usage"
)

// Research depth bounds. Out-of-range requests are clamped, not rejected.
const (
	minResearchDepth = 1
	maxResearchDepth = 5
)

// run is one queued analysis, carried from StartAnalysis to a worker.
type run struct {
	id      string
	cfg     models.AnalysisConfig
	roles   []models.AgentRole
	ctx     context.Context
	cancel  context.CancelFunc
	control *lifecycle.Control
	done    chan struct{}
}

// Orchestrator wires the store, catalog, manager, and trackers behind the
// orchestration API, and runs analyses on a bounded worker pool.
type Orchestrator struct {
	cfg      *config.Config
	store    store.Store
	catalog  *catalog.Catalog
	manager  *manager.Manager
	usage    *usage.Tracker
	coord    *collab.Coordinator
	progress *progress.Registry
	runs     *lifecycle.Tracker
	logger   *slog.Logger

	baseCtx  context.Context
	baseStop context.CancelFunc

	queue    chan *run
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates the orchestrator. Start must be called before submissions.
func New(cfg *config.Config, st store.Store, cat *catalog.Catalog, mgr *manager.Manager, tracker *usage.Tracker) *Orchestrator {
	baseCtx, baseStop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		catalog:  cat,
		manager:  mgr,
		usage:    tracker,
		coord:    collab.New(mgr, cfg.Agents),
		progress: progress.NewRegistry(st, cfg.Settings.ProgressTTL),
		runs:     lifecycle.NewTracker(st),
		logger:   slog.With("component", "orchestrator"),
		baseCtx:  baseCtx,
		baseStop: baseStop,
		queue:    make(chan *run, cfg.Settings.QueueMaxDepth),
		stopCh:   make(chan struct{}),
	}
}

// Start recovers stale runs from a previous process and launches the worker
// pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	recovered, err := o.runs.RecoverStale(ctx, o.cfg.Settings.ProgressTTL)
	if err != nil {
		o.logger.Warn("Stale run recovery failed", "error", err)
	} else if recovered > 0 {
		o.logger.Info("Recovered stale runs from previous process", "count", recovered)
	}

	workers := o.cfg.Settings.MaxConcurrentTasks
	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.Info("Worker pool started",
		"workers", workers, "queue_depth", cap(o.queue))
	return nil
}

// Close drains the pool: no new submissions are accepted, in-flight runs are
// cancelled, and workers are awaited.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		o.baseStop()
	})
	o.wg.Wait()
}

// StartAnalysis validates the config, persists the pending run, and enqueues
// it. A full queue fails fast with system_overload.
func (o *Orchestrator) StartAnalysis(ctx context.Context, cfg models.AnalysisConfig) (string, error) {
	select {
	case <-o.stopCh:
		return "", models.NewUserError(models.ErrKindSystemOverload, "orchestrator is shutting down")
	default:
	}

	cfg, roles, verr := o.normalizeConfig(cfg)
	if verr != nil {
		return "", verr
	}

	analysisID := uuid.NewString()
	runCtx, cancel := context.WithCancel(o.baseCtx)
	r := &run{
		id:      analysisID,
		cfg:     cfg,
		roles:   roles,
		ctx:     runCtx,
		cancel:  cancel,
		control: lifecycle.NewControl(cancel),
		done:    make(chan struct{}),
	}

	if err := o.persistRun(ctx, o.newRun(r, models.StatusPending, nil, "")); err != nil {
		cancel()
		return "", models.NewUserError(models.ErrKindInternal, "failed to persist analysis run")
	}
	o.persistSession(ctx, r, models.StatusPending)
	o.runs.Register(lifecycle.NewHandle(analysisID, r.control, r.done))

	select {
	case o.queue <- r:
	default:
		o.runs.Unregister(analysisID)
		cancel()
		close(r.done)
		_ = o.store.Del(ctx, store.PrefixAnalysis+analysisID)
		_ = o.store.Del(ctx, store.PrefixSession+analysisID)
		o.logger.Warn("Submission queue full, rejecting analysis",
			"analysis_id", analysisID, "queue_depth", cap(o.queue))
		return "", models.NewUserError(models.ErrKindSystemOverload, "submission queue is full")
	}

	o.logger.Info("Analysis queued",
		"analysis_id", analysisID,
		"symbol", cfg.StockSymbol,
		"mode", cfg.CollaborationMode,
		"agents", len(cfg.SelectedAgents),
		"depth", cfg.ResearchDepth)
	return analysisID, nil
}

// normalizeConfig applies defaults, clamps depth, and resolves agent keys.
func (o *Orchestrator) normalizeConfig(cfg models.AnalysisConfig) (models.AnalysisConfig, []models.AgentRole, *models.UserError) {
	if strings.TrimSpace(cfg.StockSymbol) == "" {
		return cfg, nil, models.NewUserError(models.ErrKindValidation, "stock_symbol is required")
	}
	if cfg.Market == "" {
		cfg.Market = models.MarketGlobal
	}
	if !cfg.Market.Valid() {
		return cfg, nil, models.NewUserError(models.ErrKindValidation,
			fmt.Sprintf("unknown market %q", cfg.Market))
	}
	if cfg.AnalysisDate == "" {
		cfg.AnalysisDate = time.Now().UTC().Format("2006-01-02")
	}
	if len(cfg.SelectedAgents) == 0 {
		return cfg, nil, models.NewUserError(models.ErrKindValidation, "selected_agents must not be empty")
	}
	if cfg.CollaborationMode == "" {
		cfg.CollaborationMode = models.ModeSequential
	}
	if !cfg.CollaborationMode.Valid() {
		return cfg, nil, models.NewUserError(models.ErrKindValidation,
			fmt.Sprintf("unknown collaboration_mode %q", cfg.CollaborationMode))
	}
	if cfg.CollaborationMode == models.ModeDebate && len(cfg.SelectedAgents) < 2 {
		return cfg, nil, models.NewUserError(models.ErrKindValidation, "debate requires ≥ 2 participants")
	}
	if cfg.ResearchDepth < minResearchDepth || cfg.ResearchDepth > maxResearchDepth {
		clamped := min(max(cfg.ResearchDepth, minResearchDepth), maxResearchDepth)
		o.logger.Warn("Research depth out of range, clamping",
			"requested", cfg.ResearchDepth, "clamped", clamped)
		cfg.ResearchDepth = clamped
	}
	if cfg.BudgetCap <= 0 {
		cfg.BudgetCap = o.cfg.Settings.MaxCostPerSession
	}

	roles := make([]models.AgentRole, 0, len(cfg.SelectedAgents))
	for _, key := range cfg.SelectedAgents {
		role, err := o.cfg.Agents.Role(key)
		if err != nil {
			return cfg, nil, models.NewUserError(models.ErrKindValidation,
				fmt.Sprintf("unknown agent role %q", key))
		}
		roles = append(roles, role)
	}
	return cfg, roles, nil
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case r := <-o.queue:
			o.execute(r)
		}
	}
}

// execute runs one analysis end to end: progress tracking, collaboration,
// terminal persistence, lifecycle deregistration.
func (o *Orchestrator) execute(r *run) {
	defer close(r.done)
	defer r.cancel()
	defer o.runs.Unregister(r.id)

	ctx := r.ctx
	tracker := o.progress.Start(ctx, r.id, r.roles, r.cfg.ResearchDepth)
	o.usage.BeginSession(r.id, r.cfg.CollaborationMode, r.cfg.SelectedAgents,
		r.cfg.MaxDebateRounds, r.cfg.BudgetCap)
	o.updateRun(ctx, r, models.StatusRunning, nil, "")

	tracker.AdvanceTo(ctx, "init_engine", "Analysis engine initialized")

	result := o.coord.Execute(ctx, collab.Request{
		SessionID:       r.id,
		Description:     runDescription(r.cfg),
		Participants:    r.cfg.SelectedAgents,
		Mode:            r.cfg.CollaborationMode,
		Context:         runContext(r.cfg),
		MaxDebateRounds: r.cfg.MaxDebateRounds,
		Overrides:       r.cfg.RuntimeOverrides,
		BudgetCap:       r.cfg.BudgetCap,
		FallbackChain:   o.normalizeChain(r.cfg.FallbackChain),
		ProviderPref:    r.cfg.ProviderPref,
		Control:         r.control,
		Progress:        tracker,
	})

	// Use a background context for terminal writes so a cancelled run can
	// still persist its final state.
	finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case r.control.Cancelled():
		tracker.MarkCancelled(finalCtx, "Analysis cancelled by user")
		o.updateRun(finalCtx, r, models.StatusCancelled, result, "analysis cancelled")
	case result.Success:
		tracker.MarkCompleted(finalCtx, "Analysis completed", map[string]any{
			"total_cost":           result.TotalCost,
			"total_time_ms":        result.TotalTimeMs,
			"participating_models": result.ParticipatingModels,
		})
		o.updateRun(finalCtx, r, models.StatusCompleted, result, "")
	default:
		msg := result.ErrorMessage
		if msg == "" {
			msg = "one or more analysis stages failed"
		}
		tracker.MarkFailed(finalCtx, errors.New(msg))
		o.updateRun(finalCtx, r, models.StatusFailed, result, msg)
	}

	o.logger.Info("Analysis finished",
		"analysis_id", r.id,
		"success", result.Success,
		"total_cost", result.TotalCost,
		"total_time_ms", result.TotalTimeMs)
}

// normalizeChain turns "provider:model" entries into canonical model names.
func (o *Orchestrator) normalizeChain(chain []string) []string {
	out := make([]string, 0, len(chain))
	for _, entry := range chain {
		name := entry
		if i := strings.Index(name, ":"); i >= 0 {
			name = name[i+1:]
		}
		out = append(out, o.cfg.Routing.CanonicalModelName(name))
	}
	return out
}

func (o *Orchestrator) newRun(r *run, status models.SessionStatus, summary *models.CollaborationResult, errMsg string) *models.AnalysisRun {
	now := time.Now().UTC()
	cfg := r.cfg
	return &models.AnalysisRun{
		AnalysisID:        r.id,
		StockSymbol:       cfg.StockSymbol,
		Market:            cfg.Market,
		AnalysisDate:      cfg.AnalysisDate,
		SelectedAgents:    cfg.SelectedAgents,
		CollaborationMode: cfg.CollaborationMode,
		ResearchDepth:     cfg.ResearchDepth,
		ProviderPref:      cfg.ProviderPref,
		Status:            status,
		StartedAt:         now,
		UpdatedAt:         now,
		Config:            &cfg,
		ResultsSummary:    summary,
		ErrorMessage:      errMsg,
	}
}

func (o *Orchestrator) persistRun(ctx context.Context, rec *models.AnalysisRun) error {
	return store.SetJSON(ctx, o.store, store.PrefixAnalysis+rec.AnalysisID, rec, o.cfg.Settings.AnalysisTTL)
}

// updateRun refreshes status and summary without losing the original
// StartedAt.
func (o *Orchestrator) updateRun(ctx context.Context, r *run, status models.SessionStatus, summary *models.CollaborationResult, errMsg string) {
	var rec models.AnalysisRun
	if err := store.GetJSON(ctx, o.store, store.PrefixAnalysis+r.id, &rec); err != nil {
		rec = *o.newRun(r, status, summary, errMsg)
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	if summary != nil {
		rec.ResultsSummary = summary
	}
	rec.ErrorMessage = errMsg
	if err := o.persistRun(ctx, &rec); err != nil {
		o.logger.Warn("Failed to persist analysis run", "analysis_id", r.id, "error", err)
	}
	if models.TerminalStatus(status) {
		o.usage.EndSession(r.id, status)
	}
	o.persistSession(ctx, r, status)
}

func (o *Orchestrator) persistSession(ctx context.Context, r *run, status models.SessionStatus) {
	rec := models.SessionRecord{
		AnalysisID: r.id,
		Status:     status,
		Symbol:     r.cfg.StockSymbol,
		Market:     r.cfg.Market,
		FormConfig: &r.cfg,
		Timestamp:  time.Now().UTC(),
	}
	if sess, ok := o.usage.Session(r.id); ok {
		rec.Metrics = &sess.Metrics
	}
	if err := store.SetJSON(ctx, o.store, store.PrefixSession+r.id, rec, o.cfg.Settings.SessionTTL); err != nil {
		o.logger.Warn("Failed to persist session record", "analysis_id", r.id, "error", err)
	}
}

func runDescription(cfg models.AnalysisConfig) string {
	return fmt.Sprintf("Analyze %s (%s market) as of %s at research depth %d.",
		cfg.StockSymbol, cfg.Market, cfg.AnalysisDate, cfg.ResearchDepth)
}

func runContext(cfg models.AnalysisConfig) map[string]any {
	return map[string]any{
		"stock_symbol":   cfg.StockSymbol,
		"market":         string(cfg.Market),
		"analysis_date":  cfg.AnalysisDate,
		"research_depth": cfg.ResearchDepth,
	}
}
