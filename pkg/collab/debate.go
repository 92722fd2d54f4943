package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight-ai/finsight/pkg/manager"
	"github.com/finsight-ai/finsight/pkg/models"
)

// neutralPosition stands in for an agent whose turn failed, keeping the
// history shape at exactly rounds × participants entries.
const neutralPosition = "(no position: the agent could not respond this round)"

func debateRounds(req Request) int {
	if req.MaxDebateRounds >= 2 {
		return req.MaxDebateRounds
	}
	return defaultDebateRounds
}

// runDebate runs round 1 position statements followed by rebuttal rounds in
// which each agent sees the other agents' latest positions. All positions
// of round k are collected before round k+1 begins.
func (c *Coordinator) runDebate(ctx context.Context, req Request, roles []models.AgentRole) ([]*models.TaskResult, int64, []models.DebateTurn) {
	rounds := debateRounds(req)
	var results []*models.TaskResult
	var history []models.DebateTurn
	var totalMs int64

	// positions holds the last full round, one entry per participant.
	positions := make([]string, len(roles))

	for round := 1; round <= rounds; round++ {
		if stop := c.checkpoint(ctx, req); stop != nil {
			results = append(results, stop)
			return results, totalMs, history
		}

		next := make([]string, len(roles))
		for i, role := range roles {
			prompt := debatePrompt(req.Description, role, roles, positions, round, i)
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

			position := neutralPosition
			if result.Success {
				position = result.Text
			} else {
				c.logger.Warn("Debate turn failed, recording neutral position",
					"session_id", req.SessionID, "agent_role", role.Key, "round", round)
			}
			next[i] = position
			history = append(history, models.DebateTurn{Round: round, Agent: role.Key, Position: position})
		}
		positions = next
	}
	return results, totalMs, history
}

// debatePrompt frames one turn: round 1 asks for an initial position, later
// rounds present the other participants' latest positions for rebuttal.
func debatePrompt(description string, role models.AgentRole, roles []models.AgentRole, positions []string, round, self int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s in a structured debate on: %s\n", role.DisplayName, description)

	if round == 1 {
		b.WriteString("\nRound 1: state your initial position with your strongest supporting evidence.")
		return b.String()
	}

	fmt.Fprintf(&b, "\nRound %d. The other participants' latest positions:\n", round)
	for i, other := range roles {
		if i == self {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", other.DisplayName, positions[i])
	}
	b.WriteString("\nRebut or refine: address the strongest opposing argument and update your position.")
	return b.String()
}
