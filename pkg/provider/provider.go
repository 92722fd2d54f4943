// Package provider defines the uniform adapter contract over heterogeneous
// LLM providers, plus the shared option, result, and error-translation
// machinery every adapter uses.
package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
)

// Adapter is the uniform execution contract. The core depends only on this
// interface; each reference adapter targets one provider's HTTP API.
type Adapter interface {
	// Name identifies the provider.
	Name() models.Provider

	// SupportedModels returns the specs this adapter can execute.
	SupportedModels() []models.ModelSpec

	// ExecuteTask runs one prompt against one model. Failures are returned
	// as *Error carrying an ErrorKind from the taxonomy.
	ExecuteTask(ctx context.Context, spec models.ModelSpec, prompt string, task models.TaskSpec, opts Options) (*Result, error)

	// EstimateCost prices a token count against a model.
	EstimateCost(spec models.ModelSpec, tokens int) float64

	// HealthCheck verifies the provider is reachable and the key works.
	HealthCheck(ctx context.Context) error
}

// Options are the per-call execution options.
type Options struct {
	// Temperature, nil for the provider default.
	Temperature *float64

	// TopP, nil for the provider default.
	TopP *float64

	// MaxTokens caps the completion. Zero falls back to the model's
	// MaxOutputTokens.
	MaxTokens int

	// Stream requests incremental delivery through OnToken.
	Stream bool

	// OnToken receives each streamed fragment. Callback panics never abort
	// the call.
	OnToken func(token string)

	// Timeout overrides the kind-based default.
	Timeout time.Duration
}

// Result is the raw outcome of one adapter execution.
type Result struct {
	Text  string
	Usage models.TokenUsage
}

// Timeout defaults by model kind.
const (
	DefaultTimeout          = 60 * time.Second
	DefaultReasoningTimeout = 120 * time.Second
)

// EffectiveTimeout resolves the call timeout: explicit option, else the
// kind-based default (reasoning and thinking models get the longer budget).
func EffectiveTimeout(spec models.ModelSpec, opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	if spec.IsReasoningKind() {
		return DefaultReasoningTimeout
	}
	return DefaultTimeout
}

// EffectiveMaxTokens resolves the completion cap: explicit option, else the
// model's own cap, else a conservative default.
func EffectiveMaxTokens(spec models.ModelSpec, opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	if spec.MaxOutputTokens > 0 {
		return spec.MaxOutputTokens
	}
	return 4096
}

// EstimateTokens is the fallback token estimate when the provider reports no
// usage: roughly two characters per token, never less than one.
func EstimateTokens(text string) int {
	n := len(text) / 2
	if n < 1 {
		n = 1
	}
	return n
}

// CostFor prices a token count against a model spec.
func CostFor(spec models.ModelSpec, tokens int) float64 {
	return spec.CostPer1KTokens * float64(tokens) / 1000.0
}

// SafeEmit delivers one fragment to an OnToken callback, swallowing panics
// so a broken observer cannot abort the task.
func SafeEmit(onToken func(string), token string) {
	if onToken == nil || token == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Token callback panicked", "panic", r)
		}
	}()
	onToken(token)
}

// FillUsage completes a usage record, estimating missing counts from the
// produced text.
func FillUsage(usage models.TokenUsage, prompt, text string) models.TokenUsage {
	if usage.PromptTokens == 0 {
		usage.PromptTokens = EstimateTokens(prompt)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = EstimateTokens(text)
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}
