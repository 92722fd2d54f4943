package manager

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/catalog"
	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider/providertest"
	"github.com/finsight-ai/finsight/pkg/routing"
	"github.com/finsight-ai/finsight/pkg/store"
	"github.com/finsight-ai/finsight/pkg/usage"
)

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

type fixture struct {
	manager *Manager
	adapter *providertest.Scripted
	tracker *usage.Tracker
}

func newFixture(t *testing.T, specs ...models.ModelSpec) *fixture {
	t.Helper()

	if len(specs) == 0 {
		specs = []models.ModelSpec{
			gatewaySpec("deepseek-r1", models.KindThinking),
			gatewaySpec("o3-mini", models.KindReasoning),
			gatewaySpec("deepseek-v3", models.KindGeneral),
		}
	}

	st, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Settings: config.DefaultSettings(),
		Routing:  config.DefaultRoutingConfig(),
		Agents:   config.NewAgentRegistry(models.DefaultAgentRoles(), nil, nil),
	}
	adapter := providertest.New(models.ProviderGateway, specs...)
	cat := catalog.New(adapter)
	router := routing.New(cfg, st)
	tracker := usage.NewTracker(st)

	m := New(cfg, cat, router, tracker, adapter)
	m.backoffBase = time.Millisecond
	return &fixture{manager: m, adapter: adapter, tracker: tracker}
}

func fundamentalReq(session string) Request {
	return Request{
		SessionID:  session,
		AgentRole:  models.RoleFundamentalExpert,
		Prompt:     "evaluate the balance sheet of AAPL",
		TaskType:   "fundamental_analysis",
		Complexity: models.ComplexityHigh,
	}
}

func TestExecuteTaskBudgetGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.Record(ctx, models.UsageRecord{SessionID: "s1", EstimatedCost: 2.0})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrKindBudgetExceeded, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "budget")
	// The gate fires before any adapter call.
	assert.Zero(t, f.adapter.CallCount())
}

func TestExecuteTaskPrimarySuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{
		Text:  "fundamentals look strong",
		Usage: models.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	require.True(t, result.Success)
	require.NotNil(t, result.ModelUsed)
	assert.Equal(t, "deepseek-r1", result.ModelUsed.Name)
	assert.Equal(t, 150, result.TokenUsage.TotalTokens)
	assert.InDelta(t, 0.00015, result.ActualCost, 1e-9)
	assert.Greater(t, f.tracker.SessionCost("s1"), 0.0)
}

func TestExecuteTaskFallbackChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{Kind: models.ErrKindRateLimited})
	f.adapter.AddRouted("o3-mini", providertest.ScriptEntry{Text: "second choice delivers"})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	require.True(t, result.Success)
	assert.Equal(t, "o3-mini", result.ModelUsed.Name)

	calls := f.adapter.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "deepseek-r1", calls[0].Model)
	assert.Equal(t, "o3-mini", calls[1].Model)
}

func TestExecuteTaskOverrideAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Text: "pinned"})

	req := fundamentalReq("s1")
	req.ModelOverride = "deepseek"

	result := f.manager.ExecuteTask(ctx, req)
	require.True(t, result.Success)
	assert.Equal(t, "deepseek-v3", result.ModelUsed.Name)
	require.Equal(t, 1, f.adapter.CallCount())
}

func TestExecuteTaskNonRetryableStopsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{Kind: models.ErrKindAPIKeyInvalid})
	// Simplified fallback also fails so the original kind surfaces.
	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Kind: models.ErrKindAPIKeyInvalid})
	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Kind: models.ErrKindAPIKeyInvalid})
	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Kind: models.ErrKindAPIKeyInvalid})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrKindAPIKeyInvalid, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "API key")
	// Chain stopped after the first model; remaining calls are simplified mode.
	calls := f.adapter.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "deepseek-r1", calls[0].Model)
	for _, c := range calls[1:] {
		assert.Equal(t, "deepseek-v3", c.Model)
	}
}

func TestExecuteTaskSimplifiedFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Every chain attempt fails with a retryable kind.
	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{Kind: models.ErrKindTimeout})
	f.adapter.AddRouted("o3-mini", providertest.ScriptEntry{Kind: models.ErrKindTimeout})
	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Kind: models.ErrKindTimeout})
	// Simplified mode succeeds on the first retry candidate.
	f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Text: "hold, thin margin of safety"})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	require.True(t, result.Success)
	assert.Equal(t, "[simplified mode] hold, thin margin of safety", result.Text)

	calls := f.adapter.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last.Prompt, "1-3 sentences")
	assert.Equal(t, models.ComplexityLow, last.Task.Complexity)
	require.NotNil(t, last.Opts.Temperature)
	assert.InDelta(t, 0.7, *last.Opts.Temperature, 1e-9)
	assert.Equal(t, 1000, last.Opts.MaxTokens)
}

func TestExecuteTaskCancelledDuringBackoff(t *testing.T) {
	f := newFixture(t)
	f.manager.backoffBase = time.Second

	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{Kind: models.ErrKindTimeout})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrKindCancelled, result.ErrorKind)
}

func TestBreakerRemovesModel(t *testing.T) {
	f := newFixture(t, gatewaySpec("deepseek-v3", models.KindGeneral))
	ctx := context.Background()

	for i := 0; i < breakerFailureThreshold; i++ {
		f.adapter.AddRouted("deepseek-v3", providertest.ScriptEntry{Kind: models.ErrKindHTTPError})
	}
	task := models.TaskSpec{TaskType: "misc"}
	for i := 0; i < breakerFailureThreshold; i++ {
		res := f.manager.executeOnce(ctx, "t", Request{Prompt: "p"}, task, "deepseek-v3")
		require.False(t, res.Success)
	}

	assert.True(t, f.manager.breakers.open(models.ProviderGateway, "deepseek-v3"))
	assert.Empty(t, f.manager.availableModels())

	// With the only model tripped, execution reports no model available.
	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrKindNoModelAvailable, result.ErrorKind)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 1},
		{"english words", "analyze the quarterly report", 5},
		{"chinese", "分析财报", 4},
		{"mixed", "分析 AAPL quarterly report", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.in))
		})
	}
}

func TestExecuteTaskFoldsSessionMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.AddRouted("deepseek-r1", providertest.ScriptEntry{
		Text:  "fundamentals look strong",
		Usage: models.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})

	result := f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	require.True(t, result.Success)

	sess, ok := f.tracker.Session("s1")
	require.True(t, ok)
	assert.Equal(t, 1, sess.Metrics.TotalTasks)
	assert.Equal(t, 1, sess.Metrics.SuccessfulTasks)
	assert.InDelta(t, result.ActualCost, sess.Metrics.TotalCost, 1e-9)
	assert.Equal(t, 1, sess.Metrics.ModelsUsed["deepseek-r1"])
	assert.Greater(t, sess.Metrics.AvgConfidence, 0.0)

	// A budget-rejected task still counts, as a failure.
	f.tracker.Record(ctx, models.UsageRecord{SessionID: "s1", EstimatedCost: 2.0})
	result = f.manager.ExecuteTask(ctx, fundamentalReq("s1"))
	require.False(t, result.Success)

	sess, ok = f.tracker.Session("s1")
	require.True(t, ok)
	assert.Equal(t, 2, sess.Metrics.TotalTasks)
	assert.Equal(t, 1, sess.Metrics.SuccessfulTasks)
}

func TestSimplifiedPromptKeepsRuneBoundaries(t *testing.T) {
	f := newFixture(t)

	req := fundamentalReq("s1")
	req.Prompt = strings.Repeat("贵州茅台现金流充沛", 80)

	out := f.manager.simplifiedPrompt(req)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "Fundamental Expert")
	assert.Less(t, len(out), len(req.Prompt))

	// Short prompts pass through whole.
	req.Prompt = "evaluate AAPL"
	assert.Contains(t, f.manager.simplifiedPrompt(req), "evaluate AAPL")
}
