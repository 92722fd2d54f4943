// Package collab coordinates multi-agent analyses: sequential pipelines,
// parallel fan-out, and structured debates, each closed by a synthesis from
// the chief decision officer.
package collab

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finsight-ai/finsight/pkg/config"
	"github.com/finsight-ai/finsight/pkg/lifecycle"
	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/progress"
	"github.com/finsight-ai/finsight/pkg/provider"
)

// defaultDebateRounds applies when the request does not set a round count.
const defaultDebateRounds = 3

// simplifiedTaskTimeout is the per-task ceiling in degraded collaboration.
const simplifiedTaskTimeout = 30 * time.Second

// simplifiedCoreAgents bounds the degraded-mode team size.
const simplifiedCoreAgents = 3

// Executor is the slice of the manager contract the coordinator needs.
type Executor interface {
	ExecuteTask(ctx context.Context, req manager.Request) *models.TaskResult
}

// Request describes one collaborative analysis.
type Request struct {
	SessionID       string
	Description     string
	Participants    []string
	Mode            models.CollaborationMode
	Context         map[string]any
	MaxDebateRounds int
	Overrides       *models.RuntimeOverrides
	BudgetCap       float64
	FallbackChain   []string
	ProviderPref    models.Provider

	// Control is the run's pause/cancel token, consulted between stages
	// and rounds. Optional.
	Control *lifecycle.Control

	// Progress receives stage transitions. Optional.
	Progress *progress.Tracker
}

// Coordinator runs collaboration protocols over the task executor.
type Coordinator struct {
	exec   Executor
	agents *config.AgentRegistry
	logger *slog.Logger
}

// New creates a coordinator.
func New(exec Executor, agents *config.AgentRegistry) *Coordinator {
	return &Coordinator{
		exec:   exec,
		agents: agents,
		logger: slog.With("component", "collaboration"),
	}
}

// Execute runs one collaborative analysis. It never returns an error:
// failures come back in the result, and internal panics degrade to the
// simplified collaboration fallback.
func (c *Coordinator) Execute(ctx context.Context, req Request) (result *models.CollaborationResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Collaboration panicked, attempting simplified fallback",
				"session_id", req.SessionID, "mode", req.Mode, "panic", r)
			result = c.executeSimplified(ctx, req)
		}
	}()

	roles, failure := c.resolveParticipants(req)
	if failure != nil {
		return failure
	}

	var results []*models.TaskResult
	var totalTimeMs int64
	metadata := map[string]any{}

	switch req.Mode {
	case models.ModeSequential:
		results, totalTimeMs = c.runSequential(ctx, req, roles)
	case models.ModeParallel:
		results, totalTimeMs = c.runParallel(ctx, req, roles)
	case models.ModeDebate:
		var history []models.DebateTurn
		results, totalTimeMs, history = c.runDebate(ctx, req, roles)
		metadata["debate_history"] = history
		metadata["rounds"] = debateRounds(req)
		metadata["agents"] = req.Participants
	}

	if req.Control != nil && req.Control.Cancelled() {
		return failureResult(req.Mode, results, models.ErrKindCancelled, "analysis cancelled")
	}

	synthesis := c.synthesize(ctx, req, roles, results)
	results = append(results, synthesis)
	totalTimeMs += synthesis.ExecutionTimeMs

	allOK := true
	totalCost := 0.0
	for _, r := range results {
		totalCost += r.ActualCost
		if !r.Success {
			allOK = false
		}
	}

	finalText := synthesis.Text
	if !synthesis.Success {
		// Degraded continuation: surface the raw stage output rather than
		// losing the whole run to a failed synthesis.
		finalText = concatenateResults(roles, results[:len(results)-1])
	}

	return &models.CollaborationResult{
		FinalText:           finalText,
		ParticipatingModels: modelNames(results),
		IndividualResults:   results,
		Mode:                req.Mode,
		TotalCost:           totalCost,
		TotalTimeMs:         totalTimeMs,
		Success:             allOK,
		Metadata:            metadata,
	}
}

// resolveParticipants validates the request and maps keys to roles.
func (c *Coordinator) resolveParticipants(req Request) ([]models.AgentRole, *models.CollaborationResult) {
	if !req.Mode.Valid() {
		return nil, failureResult(req.Mode, nil, models.ErrKindValidation,
			fmt.Sprintf("unknown collaboration mode %q", req.Mode))
	}
	if len(req.Participants) == 0 {
		return nil, failureResult(req.Mode, nil, models.ErrKindValidation,
			"at least one participant is required")
	}
	if req.Mode == models.ModeDebate && len(req.Participants) < 2 {
		return nil, failureResult(req.Mode, nil, models.ErrKindValidation,
			"debate requires ≥ 2 participants")
	}

	roles := make([]models.AgentRole, 0, len(req.Participants))
	for _, key := range req.Participants {
		role, err := c.agents.Role(key)
		if err != nil {
			return nil, failureResult(req.Mode, nil, models.ErrKindValidation,
				fmt.Sprintf("unknown agent role %q", key))
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// runSequential executes a stage pipeline: each stage sees the previous
// stage's output. Failed stages log, contribute a placeholder, and the
// pipeline continues.
func (c *Coordinator) runSequential(ctx context.Context, req Request, roles []models.AgentRole) ([]*models.TaskResult, int64) {
	results := make([]*models.TaskResult, 0, len(roles))
	var totalMs int64
	previous := ""

	for _, role := range roles {
		if stop := c.checkpoint(ctx, req); stop != nil {
			results = append(results, stop)
			break
		}
		c.stageStarted(ctx, req, role)

		prompt := stagePrompt(req.Description, role, previous)
		result := c.exec.ExecuteTask(ctx, manager.Request{
			SessionID:     req.SessionID,
			AgentRole:     role.Key,
			Prompt:        prompt,
			TaskType:      role.TaskType,
			Complexity:    models.ComplexityMedium,
			Context:       req.Context,
			Overrides:     req.Overrides,
			BudgetCap:     req.BudgetCap,
			FallbackChain: req.FallbackChain,
			ProviderPref:  req.ProviderPref,
		})
		results = append(results, result)
		totalMs += result.ExecutionTimeMs
		c.stageCompleted(ctx, req, role)

		if result.Success {
			previous = result.Text
		} else {
			c.logger.Warn("Stage failed, continuing pipeline",
				"session_id", req.SessionID, "agent_role", role.Key, "error_kind", result.ErrorKind)
		}
	}
	return results, totalMs
}

// runParallel fans every role out concurrently. Total time is the slowest
// stage, not the sum.
func (c *Coordinator) runParallel(ctx context.Context, req Request, roles []models.AgentRole) ([]*models.TaskResult, int64) {
	if stop := c.checkpoint(ctx, req); stop != nil {
		return []*models.TaskResult{stop}, 0
	}

	results := make([]*models.TaskResult, len(roles))
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range roles {
		g.Go(func() error {
			c.stageStarted(gctx, req, role)
			results[i] = c.exec.ExecuteTask(gctx, manager.Request{
				SessionID:     req.SessionID,
				AgentRole:     role.Key,
				Prompt:        stagePrompt(req.Description, role, ""),
				TaskType:      role.TaskType,
				Complexity:    models.ComplexityMedium,
				Context:       req.Context,
				Overrides:     req.Overrides,
				BudgetCap:     req.BudgetCap,
				FallbackChain: req.FallbackChain,
				ProviderPref:  req.ProviderPref,
			})
			c.stageCompleted(gctx, req, role)
			return nil
		})
	}
	_ = g.Wait()

	var maxMs int64
	for _, r := range results {
		if r.ExecutionTimeMs > maxMs {
			maxMs = r.ExecutionTimeMs
		}
	}
	return results, maxMs
}

// synthesize closes every mode with the chief decision officer.
func (c *Coordinator) synthesize(ctx context.Context, req Request, roles []models.AgentRole, results []*models.TaskResult) *models.TaskResult {
	prompt := fmt.Sprintf(
		"As Chief Decision Officer, synthesize the team's findings into a final recommendation.\n\nOriginal request: %s\n\nTeam findings:\n%s",
		req.Description, concatenateResults(roles, results))

	return c.exec.ExecuteTask(ctx, manager.Request{
		SessionID:     req.SessionID,
		AgentRole:     models.RoleChiefDecisionOfficer,
		Prompt:        prompt,
		TaskType:      "decision_making",
		Complexity:    models.ComplexityHigh,
		Context:       req.Context,
		Overrides:     req.Overrides,
		BudgetCap:     req.BudgetCap,
		FallbackChain: req.FallbackChain,
		ProviderPref:  req.ProviderPref,
	})
}

// executeSimplified is the degraded collaboration: the highest-priority core
// agents, forced sequential, one attempt per task under a hard timeout.
func (c *Coordinator) executeSimplified(ctx context.Context, req Request) *models.CollaborationResult {
	roles := c.coreAgents(req.Participants)
	if len(roles) == 0 {
		return failureResult(req.Mode, nil, models.ErrKindInternal,
			"collaboration failed and no core agents are available")
	}

	var results []*models.TaskResult
	var totalMs int64
	totalCost := 0.0
	previous := ""

	for _, role := range roles {
		result := c.exec.ExecuteTask(ctx, manager.Request{
			SessionID:       req.SessionID,
			AgentRole:       role.Key,
			Prompt:          stagePrompt(req.Description, role, previous),
			TaskType:        role.TaskType,
			Complexity:      models.ComplexityLow,
			Context:         req.Context,
			BudgetCap:       req.BudgetCap,
			DisableFallback: true,
			Options:         provider.Options{Timeout: simplifiedTaskTimeout},
		})
		results = append(results, result)
		totalMs += result.ExecutionTimeMs
		totalCost += result.ActualCost
		if result.Success {
			previous = result.Text
		}
	}

	if previous == "" {
		ue := models.NewUserError(models.ErrKindInternal, "collaboration failed in simplified mode")
		return &models.CollaborationResult{
			Mode:              req.Mode,
			IndividualResults: results,
			TotalCost:         totalCost,
			TotalTimeMs:       totalMs,
			Success:           false,
			ErrorMessage:      ue.Message,
		}
	}

	return &models.CollaborationResult{
		FinalText:           previous,
		ParticipatingModels: modelNames(results),
		IndividualResults:   results,
		Mode:                models.ModeSequential,
		TotalCost:           totalCost,
		TotalTimeMs:         totalMs,
		Success:             true,
		Metadata:            map[string]any{"simplified": true},
	}
}

// coreAgents picks up to three of the requested participants by priority,
// falling back to the registry's most essential roles.
func (c *Coordinator) coreAgents(participants []string) []models.AgentRole {
	var roles []models.AgentRole
	for _, key := range participants {
		if role, err := c.agents.Role(key); err == nil {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = c.agents.Roles()
	}
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].Priority < roles[j].Priority })
	if len(roles) > simplifiedCoreAgents {
		roles = roles[:simplifiedCoreAgents]
	}
	return roles
}

// checkpoint honors pause/cancel between stages. Returns a failure result
// when the run is cancelled, nil to proceed.
func (c *Coordinator) checkpoint(ctx context.Context, req Request) *models.TaskResult {
	if req.Control == nil {
		if ctx.Err() != nil {
			return models.FailedTask("", models.ErrKindCancelled, "analysis cancelled")
		}
		return nil
	}
	if err := req.Control.Checkpoint(ctx); err != nil {
		return models.FailedTask("", models.ErrKindCancelled, "analysis cancelled")
	}
	return nil
}

func (c *Coordinator) stageStarted(ctx context.Context, req Request, role models.AgentRole) {
	if req.Progress != nil {
		req.Progress.StageStarted(ctx, role.Key+"_analysis")
	}
}

func (c *Coordinator) stageCompleted(ctx context.Context, req Request, role models.AgentRole) {
	if req.Progress != nil {
		req.Progress.StageCompleted(ctx, role.Key+"_analysis")
	}
}

// stagePrompt frames the request for one role, threading in the previous
// stage's output for pipeline modes.
func stagePrompt(description string, role models.AgentRole, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s on a stock analysis team.\n\nRequest: %s\n", role.DisplayName, description)
	if previous != "" {
		fmt.Fprintf(&b, "\nFindings from the previous stage:\n%s\n", previous)
	}
	fmt.Fprintf(&b, "\nProvide your %s.", strings.ReplaceAll(role.TaskType, "_", " "))
	return b.String()
}

// concatenateResults renders per-role findings for synthesis prompts and
// degraded final texts.
func concatenateResults(roles []models.AgentRole, results []*models.TaskResult) string {
	var b strings.Builder
	for i, r := range results {
		name := "stage"
		if i < len(roles) {
			name = roles[i].DisplayName
		}
		if r.Success {
			fmt.Fprintf(&b, "## %s\n%s\n\n", name, r.Text)
		} else {
			fmt.Fprintf(&b, "## %s\n(unavailable: %s)\n\n", name, r.ErrorKind)
		}
	}
	return strings.TrimSpace(b.String())
}

func modelNames(results []*models.TaskResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		if r.ModelUsed == nil || seen[r.ModelUsed.Name] {
			continue
		}
		seen[r.ModelUsed.Name] = true
		out = append(out, r.ModelUsed.Name)
	}
	return out
}

func failureResult(mode models.CollaborationMode, results []*models.TaskResult, kind models.ErrorKind, message string) *models.CollaborationResult {
	ue := models.NewUserError(kind, message)
	msg := ue.Message
	if ue.Suggestion != "" {
		msg += " (" + ue.Suggestion + ")"
	}
	return &models.CollaborationResult{
		Mode:              mode,
		IndividualResults: results,
		Success:           false,
		ErrorMessage:      msg,
	}
}
