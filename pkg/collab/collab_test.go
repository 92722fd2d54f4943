package collab

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/lifecycle"
	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
)

// fakeExec scripts the task executor with a handler function.
type fakeExec struct {
	mu      sync.Mutex
	calls   []manager.Request
	handler func(req manager.Request) *models.TaskResult
}

func (f *fakeExec) ExecuteTask(_ context.Context, req manager.Request) *models.TaskResult {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(req)
	}
	return okResult(req.AgentRole + " findings")
}

func (f *fakeExec) recorded() []manager.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]manager.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

func okResult(text string) *models.TaskResult {
	spec := models.ModelSpec{Name: "deepseek-v3", Provider: models.ProviderGateway}
	return &models.TaskResult{
		Text:            text,
		ModelUsed:       &spec,
		ExecutionTimeMs: 100,
		ActualCost:      0.01,
		Success:         true,
	}
}

func newCoordinator(handler func(manager.Request) *models.TaskResult) (*Coordinator, *fakeExec) {
	exec := &fakeExec{handler: handler}
	agents := config.NewAgentRegistry(models.DefaultAgentRoles(), nil, nil)
	return New(exec, agents), exec
}

func baseRequest(mode models.CollaborationMode, participants ...string) Request {
	return Request{
		SessionID:    "s1",
		Description:  "full analysis of AAPL before earnings",
		Participants: participants,
		Mode:         mode,
	}
}

func TestExecuteSequential(t *testing.T) {
	c, exec := newCoordinator(nil)

	result := c.Execute(context.Background(),
		baseRequest(models.ModeSequential,
			models.RoleFundamentalExpert, models.RoleTechnicalAnalyst))

	require.True(t, result.Success)
	calls := exec.recorded()
	require.Len(t, calls, 3) // two stages + synthesis

	// Stage 2 sees stage 1's output.
	assert.Contains(t, calls[1].Prompt, "fundamental_expert findings")
	// Synthesis is always the chief decision officer at high complexity.
	last := calls[2]
	assert.Equal(t, models.RoleChiefDecisionOfficer, last.AgentRole)
	assert.Equal(t, "decision_making", last.TaskType)
	assert.Equal(t, models.ComplexityHigh, last.Complexity)

	// Sequential time is summed across stages.
	assert.Equal(t, int64(300), result.TotalTimeMs)
	assert.Equal(t, models.RoleChiefDecisionOfficer+" findings", result.FinalText)
	assert.Equal(t, []string{"deepseek-v3"}, result.ParticipatingModels)
}

func TestExecuteSequentialDegradedContinuation(t *testing.T) {
	c, exec := newCoordinator(func(req manager.Request) *models.TaskResult {
		if req.AgentRole == models.RoleTechnicalAnalyst {
			return models.FailedTask("t", models.ErrKindTimeout, "slow provider")
		}
		return okResult(req.AgentRole + " findings")
	})

	result := c.Execute(context.Background(),
		baseRequest(models.ModeSequential,
			models.RoleFundamentalExpert, models.RoleTechnicalAnalyst, models.RoleRiskManager))

	// The pipeline kept going past the failed stage.
	calls := exec.recorded()
	require.Len(t, calls, 4)
	// Stage 3 threads through the last successful output, not the failure.
	assert.Contains(t, calls[2].Prompt, "fundamental_expert findings")

	// One failed stage makes the run unsuccessful, but the synthesis and
	// final text are still produced.
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.FinalText)
	assert.Len(t, result.IndividualResults, 4)
}

func TestExecuteParallel(t *testing.T) {
	var slow sync.Once
	c, exec := newCoordinator(func(req manager.Request) *models.TaskResult {
		r := okResult(req.AgentRole + " findings")
		slow.Do(func() { r.ExecutionTimeMs = 900 })
		return r
	})

	result := c.Execute(context.Background(),
		baseRequest(models.ModeParallel,
			models.RoleNewsHunter, models.RoleSentimentAnalyst, models.RoleTechnicalAnalyst))

	require.True(t, result.Success)
	require.Len(t, exec.recorded(), 4)
	// Parallel time is the slowest stage plus synthesis, not the sum.
	assert.Equal(t, int64(1000), result.TotalTimeMs)
}

func TestExecuteDebate(t *testing.T) {
	c, exec := newCoordinator(func(req manager.Request) *models.TaskResult {
		if req.AgentRole == models.RoleTechnicalAnalyst && strings.Contains(req.Prompt, "Round 1") {
			return models.FailedTask("t", models.ErrKindRateLimited, "throttled")
		}
		return okResult(req.AgentRole + " position")
	})

	req := baseRequest(models.ModeDebate, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst)
	req.MaxDebateRounds = 2
	result := c.Execute(context.Background(), req)

	history, ok := result.Metadata["debate_history"].([]models.DebateTurn)
	require.True(t, ok)
	// rounds × participants entries, failures included as neutral turns.
	require.Len(t, history, 4)
	assert.Equal(t, 1, history[0].Round)
	assert.Equal(t, neutralPosition, history[1].Position)
	assert.Equal(t, 2, result.Metadata["rounds"])

	// Round 2 prompts carry the opponent's round 1 position.
	calls := exec.recorded()
	require.Len(t, calls, 5) // 2 rounds × 2 agents + synthesis
	assert.Contains(t, calls[2].Prompt, neutralPosition)
	assert.Contains(t, calls[3].Prompt, "fundamental_expert position")

	// A failed turn fails the run overall.
	assert.False(t, result.Success)
}

func TestExecuteDebateAllRoundsOrdered(t *testing.T) {
	c, exec := newCoordinator(nil)

	req := baseRequest(models.ModeDebate, models.RoleFundamentalExpert, models.RoleRiskManager)
	result := c.Execute(context.Background(), req)

	require.True(t, result.Success)
	history := result.Metadata["debate_history"].([]models.DebateTurn)
	require.Len(t, history, 6) // default 3 rounds × 2 agents

	// Round k is fully collected before round k+1 starts.
	for i, turn := range history {
		assert.Equal(t, i/2+1, turn.Round)
	}
	require.Len(t, exec.recorded(), 7)
}

func TestExecuteValidation(t *testing.T) {
	c, _ := newCoordinator(nil)
	ctx := context.Background()

	t.Run("debate needs two participants", func(t *testing.T) {
		result := c.Execute(ctx, baseRequest(models.ModeDebate, models.RoleFundamentalExpert))
		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "≥ 2")
	})

	t.Run("unknown role", func(t *testing.T) {
		result := c.Execute(ctx, baseRequest(models.ModeSequential, "astrologer"))
		assert.False(t, result.Success)
		assert.Contains(t, result.ErrorMessage, "astrologer")
	})

	t.Run("unknown mode", func(t *testing.T) {
		result := c.Execute(ctx, baseRequest("vibes", models.RoleFundamentalExpert))
		assert.False(t, result.Success)
	})

	t.Run("no participants", func(t *testing.T) {
		result := c.Execute(ctx, baseRequest(models.ModeSequential))
		assert.False(t, result.Success)
	})
}

func TestExecuteCancelledBetweenStages(t *testing.T) {
	control := lifecycle.NewControl(nil)
	c, exec := newCoordinator(func(req manager.Request) *models.TaskResult {
		// Cancel after the first stage completes.
		control.Cancel()
		return okResult("first")
	})

	req := baseRequest(models.ModeSequential, models.RoleFundamentalExpert, models.RoleTechnicalAnalyst)
	req.Control = control
	result := c.Execute(context.Background(), req)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "cancelled")
	// The second stage never started.
	assert.LessOrEqual(t, len(exec.recorded()), 2)
}

func TestExecuteSimplifiedFallbackOnPanic(t *testing.T) {
	c, exec := newCoordinator(func(req manager.Request) *models.TaskResult {
		if !req.DisableFallback {
			panic("coordinator bug")
		}
		return okResult(req.AgentRole + " brief")
	})

	result := c.Execute(context.Background(),
		baseRequest(models.ModeSequential,
			models.RoleNewsHunter, models.RoleFundamentalExpert,
			models.RoleTechnicalAnalyst, models.RoleSentimentAnalyst))

	require.True(t, result.Success)
	assert.Equal(t, models.ModeSequential, result.Mode)
	assert.Equal(t, true, result.Metadata["simplified"])

	// Degraded mode runs the three most essential participants, single
	// attempt each under a hard timeout.
	var simplified []manager.Request
	for _, call := range exec.recorded() {
		if call.DisableFallback {
			simplified = append(simplified, call)
		}
	}
	require.Len(t, simplified, 3)
	assert.Equal(t, models.RoleFundamentalExpert, simplified[0].AgentRole)
	assert.Equal(t, models.RoleTechnicalAnalyst, simplified[1].AgentRole)
	assert.Equal(t, models.RoleNewsHunter, simplified[2].AgentRole)
	for _, call := range simplified {
		assert.Equal(t, 30*time.Second, call.Options.Timeout)
		assert.Equal(t, models.ComplexityLow, call.Complexity)
	}
}
