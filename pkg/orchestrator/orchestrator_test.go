package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/catalog"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider/providertest"
	"github.com/finsight-ai/finsight/pkg/routing"
	"github.com/finsight-ai/finsight/pkg/store"
	"github.com/finsight-ai/finsight/pkg/usage"
)

type fixture struct {
	orch    *Orchestrator
	adapter *providertest.Scripted
	store   store.Store
}

func gatewaySpec(name string, kind models.ModelKind) models.ModelSpec {
	return models.ModelSpec{
		Name:            name,
		Provider:        models.ProviderGateway,
		Kind:            kind,
		CostPer1KTokens: 0.001,
		MaxOutputTokens: 8192,
		Capabilities: map[string]float64{
			models.CapReasoning:         0.8,
			models.CapFinancialAnalysis: 0.8,
			models.CapReliability:       0.9,
		},
	}
}

func newFixture(t *testing.T, mutate ...func(*config.Settings)) *fixture {
	t.Helper()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	settings := config.DefaultSettings()
	settings.MaxConcurrentTasks = 2
	for _, m := range mutate {
		m(settings)
	}
	cfg := &config.Config{
		Settings: settings,
		Routing:  config.DefaultRoutingConfig(),
		Agents:   config.NewAgentRegistry(models.DefaultAgentRoles(), nil, nil),
	}

	adapter := providertest.New(models.ProviderGateway,
		gatewaySpec("deepseek-r1", models.KindThinking),
		gatewaySpec("o3-mini", models.KindReasoning),
		gatewaySpec("deepseek-v3", models.KindGeneral))
	cat := catalog.New(adapter)
	tracker := usage.NewTracker(st)
	mgr := manager.New(cfg, cat, routing.New(cfg, st), tracker, adapter)

	orch := New(cfg, st, cat, mgr, tracker)
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Close)
	return &fixture{orch: orch, adapter: adapter, store: st}
}

func baseConfig(mode models.CollaborationMode, agents ...string) models.AnalysisConfig {
	return models.AnalysisConfig{
		StockSymbol:       "AAPL",
		Market:            models.MarketUS,
		AnalysisDate:      "2025-01-15",
		SelectedAgents:    agents,
		CollaborationMode: mode,
		ResearchDepth:     1,
		BudgetCap:         1.0,
	}
}

func script(f *fixture, n int) {
	for i := 0; i < n; i++ {
		f.adapter.AddSequential(providertest.ScriptEntry{Text: "analysis output"})
	}
}

func awaitTerminal(t *testing.T, f *fixture, id string) *models.AnalysisRun {
	t.Helper()
	var rec *models.AnalysisRun
	require.Eventually(t, func() bool {
		r, err := f.orch.GetResult(context.Background(), id)
		if err != nil || !models.TerminalStatus(r.Status) {
			return false
		}
		rec = r
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return rec
}

func TestSequentialSingleAgentRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 2) // one stage + synthesis

	id, err := f.orch.StartAnalysis(ctx, baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst))
	require.NoError(t, err)

	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ResultsSummary)
	assert.True(t, rec.ResultsSummary.Success)
	assert.Equal(t, "analysis output", rec.ResultsSummary.FinalText)
	assert.Len(t, rec.ResultsSummary.IndividualResults, 2)
	assert.Equal(t, 2, f.adapter.CallCount())

	snap, err := f.orch.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.ProgressPercent)
	// Depth 1: five prep stages, one analyst, advice, risk notice, report.
	assert.Len(t, snap.Steps, 9)

	records, err := f.orch.SessionUsage(ctx, id)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParallelThreeAgentRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 4) // three stages + synthesis

	cfg := baseConfig(models.ModeParallel,
		models.RoleNewsHunter, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst)
	cfg.ResearchDepth = 2
	id, err := f.orch.StartAnalysis(ctx, cfg)
	require.NoError(t, err)

	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ResultsSummary)
	assert.Len(t, rec.ResultsSummary.IndividualResults, 4)
	assert.NotEmpty(t, rec.ResultsSummary.ParticipatingModels)
	assert.Equal(t, 4, f.adapter.CallCount())
}

func TestDebateRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 7) // 3 rounds × 2 agents + synthesis

	cfg := baseConfig(models.ModeDebate, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst)
	cfg.MaxDebateRounds = 3
	id, err := f.orch.StartAnalysis(ctx, cfg)
	require.NoError(t, err)

	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ResultsSummary)

	// Metadata comes back through a JSON round-trip.
	history, ok := rec.ResultsSummary.Metadata["debate_history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 6)
	assert.Equal(t, float64(3), rec.ResultsSummary.Metadata["rounds"])
	assert.Equal(t, 7, f.adapter.CallCount())
}

func TestStartAnalysisValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expectValidation := func(t *testing.T, cfg models.AnalysisConfig) {
		t.Helper()
		_, err := f.orch.StartAnalysis(ctx, cfg)
		var ue *models.UserError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, models.ErrKindValidation, ue.Kind)
	}

	t.Run("empty symbol", func(t *testing.T) {
		cfg := baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst)
		cfg.StockSymbol = "  "
		expectValidation(t, cfg)
	})

	t.Run("no agents", func(t *testing.T) {
		expectValidation(t, baseConfig(models.ModeSequential))
	})

	t.Run("debate with one participant", func(t *testing.T) {
		expectValidation(t, baseConfig(models.ModeDebate, models.RoleTechnicalAnalyst))
	})

	t.Run("unknown agent role", func(t *testing.T) {
		expectValidation(t, baseConfig(models.ModeSequential, "astrologer"))
	})

	t.Run("unknown market", func(t *testing.T) {
		cfg := baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst)
		cfg.Market = "mars"
		expectValidation(t, cfg)
	})

	t.Run("no adapter calls on rejection", func(t *testing.T) {
		assert.Equal(t, 0, f.adapter.CallCount())
	})
}

func TestResearchDepthClamped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 2)

	cfg := baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst)
	cfg.ResearchDepth = 9
	id, err := f.orch.StartAnalysis(ctx, cfg)
	require.NoError(t, err)

	rec := awaitTerminal(t, f, id)
	assert.Equal(t, 5, rec.ResearchDepth)
}

func TestQueueOverloadFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(s *config.Settings) {
		s.MaxConcurrentTasks = 1
		s.QueueMaxDepth = 1
	})
	f.adapter.AddSequential(providertest.ScriptEntry{BlockUntilCancelled: true})

	// First run occupies the single worker.
	first, err := f.orch.StartAnalysis(ctx, baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.adapter.CallCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Second fills the queue; third is rejected.
	second, err := f.orch.StartAnalysis(ctx, baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst))
	require.NoError(t, err)

	_, err = f.orch.StartAnalysis(ctx, baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst))
	var ue *models.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, models.ErrKindSystemOverload, ue.Kind)

	require.NoError(t, f.orch.Cancel(ctx, second))
	require.NoError(t, f.orch.Cancel(ctx, first))
	rec := awaitTerminal(t, f, first)
	assert.Equal(t, models.StatusCancelled, rec.Status)
}

func TestCancelStopsNewTasks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.adapter.AddSequential(providertest.ScriptEntry{BlockUntilCancelled: true})

	id, err := f.orch.StartAnalysis(ctx,
		baseConfig(models.ModeSequential, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.adapter.CallCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.orch.Cancel(ctx, id))
	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusCancelled, rec.Status)
	// No new adapter calls after cancellation.
	assert.Equal(t, 1, f.adapter.CallCount())

	snap, err := f.orch.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)

	// Cancel is idempotent, including on the now-terminal run.
	require.NoError(t, f.orch.Cancel(ctx, id))
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.adapter.AddSequential(providertest.ScriptEntry{Text: "stage one", Delay: 300 * time.Millisecond})
	script(f, 2)

	id, err := f.orch.StartAnalysis(ctx,
		baseConfig(models.ModeSequential, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.adapter.CallCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Pause lands before the first stage finishes; the run parks at the
	// next checkpoint.
	require.NoError(t, f.orch.Pause(ctx, id))
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 1, f.adapter.CallCount())

	entries, err := f.orch.ListLatest(ctx, 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusPaused, entries[0].Status)

	require.NoError(t, f.orch.Resume(ctx, id))
	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 3, f.adapter.CallCount())
}

func TestBudgetExceededMidRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 1) // only the first stage reaches the adapter

	cfg := baseConfig(models.ModeSequential, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst)
	cfg.BudgetCap = 0.000001
	id, err := f.orch.StartAnalysis(ctx, cfg)
	require.NoError(t, err)

	rec := awaitTerminal(t, f, id)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, 1, f.adapter.CallCount())

	require.NotNil(t, rec.ResultsSummary)
	var budgetFailures int
	for _, r := range rec.ResultsSummary.IndividualResults {
		if r.ErrorKind == models.ErrKindBudgetExceeded {
			budgetFailures++
		}
	}
	assert.GreaterOrEqual(t, budgetFailures, 1)
}

func TestListLatestAndCrashRecovery(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	// A run persisted by a previous process that died mid-flight.
	stale := models.ProgressSnapshot{
		AnalysisID:      "a-stale",
		Status:          models.StatusRunning,
		ProgressPercent: 42,
		LastUpdateEpoch: time.Now().Add(-10 * time.Minute).Unix(),
	}
	require.NoError(t, store.SetJSON(ctx, st, store.PrefixProgress+"a-stale", stale, 0))
	require.NoError(t, store.SetJSON(ctx, st, store.PrefixAnalysis+"a-stale", models.AnalysisRun{
		AnalysisID:  "a-stale",
		StockSymbol: "TSLA",
		Status:      models.StatusRunning,
		StartedAt:   time.Now().Add(-10 * time.Minute),
	}, 0))

	settings := config.DefaultSettings()
	cfg := &config.Config{
		Settings: settings,
		Routing:  config.DefaultRoutingConfig(),
		Agents:   config.NewAgentRegistry(models.DefaultAgentRoles(), nil, nil),
	}
	adapter := providertest.New(models.ProviderGateway, gatewaySpec("deepseek-v3", models.KindGeneral))
	tracker := usage.NewTracker(st)
	cat := catalog.New(adapter)
	mgr := manager.New(cfg, cat, routing.New(cfg, st), tracker, adapter)
	orch := New(cfg, st, cat, mgr, tracker)
	require.NoError(t, orch.Start(ctx))
	t.Cleanup(orch.Close)

	// Recovery reconciled the orphaned run to failed; the last known percent
	// survives.
	entries, err := orch.ListLatest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a-stale", entries[0].AnalysisID)
	assert.Equal(t, models.StatusFailed, entries[0].Status)

	snap, err := orch.GetProgress(ctx, "a-stale")
	require.NoError(t, err)
	assert.Equal(t, 42.0, snap.ProgressPercent)
	assert.Equal(t, models.StatusFailed, snap.Status)
}

func TestGetResultNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.GetResult(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.orch.Pause(context.Background(), "ghost"), ErrNotFound)
}

func TestSessionRecordCarriesMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	script(f, 2) // one stage + synthesis

	id, err := f.orch.StartAnalysis(ctx, baseConfig(models.ModeSequential, models.RoleTechnicalAnalyst))
	require.NoError(t, err)
	rec := awaitTerminal(t, f, id)
	require.Equal(t, models.StatusCompleted, rec.Status)

	// The session record lands just after the terminal analysis record.
	var sess models.SessionRecord
	require.Eventually(t, func() bool {
		if err := store.GetJSON(ctx, f.store, store.PrefixSession+id, &sess); err != nil {
			return false
		}
		return models.TerminalStatus(sess.Status)
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.StatusCompleted, sess.Status)
	require.NotNil(t, sess.Metrics)
	assert.Equal(t, 2, sess.Metrics.TotalTasks)
	assert.Equal(t, 2, sess.Metrics.SuccessfulTasks)
	assert.Greater(t, sess.Metrics.TotalCost, 0.0)
	assert.Greater(t, sess.Metrics.AvgConfidence, 0.0)
	assert.NotEmpty(t, sess.Metrics.ModelsUsed)
}
