package routing

import (
	"strings"
	"unicode"

	"github.com/finsight-ai/finsight/pkg/models"
)

// Characteristics are the signals extracted from a task before scoring.
type Characteristics struct {
	RequiresReasoning bool
	CodeGeneration    bool
	LongContext       bool
	RequiresSpeed     bool
	ChineseRatio      float64
	TokenBudget       int
	Complexity        models.Complexity
}

// Task types that demand deep reasoning regardless of wording.
var reasoningTaskTypes = map[string]bool{
	"financial_report":     true,
	"fundamental_analysis": true,
	"risk_assessment":      true,
	"decision_making":      true,
	"policy_analysis":      true,
	"compliance_check":     true,
}

// Keyword tables for description-driven signals.
var (
	reasoningKeywords = []string{"why", "explain", "valuation", "estimate", "justify", "推理", "分析", "评估"}
	codeKeywords      = []string{"code", "script", "backtest", "implement", "function", "代码", "回测"}
	speedKeywords     = []string{"quick", "brief", "summary", "headline", "快速", "摘要"}
)

const longContextTokenThreshold = 8000

// AnalyzeTask extracts routing signals from the task description and spec.
func AnalyzeTask(description string, task models.TaskSpec) Characteristics {
	lower := strings.ToLower(description)

	ch := Characteristics{
		RequiresReasoning: task.RequiresReasoning || reasoningTaskTypes[task.TaskType],
		CodeGeneration:    containsAny(lower, codeKeywords) || task.TaskType == "code_generation" || task.TaskType == "tool_development",
		RequiresSpeed:     task.RequiresSpeed || containsAny(lower, speedKeywords),
		ChineseRatio:      chineseRatio(description),
		TokenBudget:       task.EstimatedTokens,
		Complexity:        task.Complexity,
	}
	if !ch.RequiresReasoning && containsAny(lower, reasoningKeywords) {
		ch.RequiresReasoning = true
	}
	if task.Complexity == models.ComplexityHigh {
		ch.RequiresReasoning = true
	}
	ch.LongContext = task.EstimatedTokens > longContextTokenThreshold || flagSet(task.Context, "long_context")
	if flagSet(task.Context, "code_generation_required") {
		ch.CodeGeneration = true
	}
	return ch
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func flagSet(ctx map[string]any, key string) bool {
	if ctx == nil {
		return false
	}
	v, ok := ctx[key].(bool)
	return ok && v
}

// chineseRatio returns the share of Han characters among all letters.
func chineseRatio(s string) float64 {
	var han, letters int
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			han++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(han) / float64(letters)
}
