// Package providertest provides a scripted adapter for tests: a dual
// dispatch mock with per-model routing for parallel stages plus a sequential
// fallback queue for deterministic call orders.
package providertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/provider"
)

// ScriptEntry defines a single scripted execution outcome.
type ScriptEntry struct {
	// Text is the response body. Streamed rune by rune when the call asks
	// for streaming.
	Text string

	// Usage overrides the default token accounting.
	Usage models.TokenUsage

	// Err is returned instead of a result.
	Err error

	// Kind, when set with Err nil, fails the call with a taxonomy error.
	Kind models.ErrorKind

	// Delay simulates execution time. Cancellation interrupts it.
	Delay time.Duration

	// BlockUntilCancelled blocks the call until the context ends.
	BlockUntilCancelled bool
}

// Call records one ExecuteTask invocation.
type Call struct {
	Model  string
	Prompt string
	Task   models.TaskSpec
	Opts   provider.Options
}

// Scripted implements provider.Adapter from a script.
type Scripted struct {
	name      models.Provider
	specs     []models.ModelSpec
	healthErr error

	mu         sync.Mutex
	sequential []ScriptEntry
	seqIndex   int
	routes     map[string][]ScriptEntry // model name → per-model script
	routeIndex map[string]int
	calls      []Call
}

// New creates a scripted adapter announcing the given specs.
func New(name models.Provider, specs ...models.ModelSpec) *Scripted {
	return &Scripted{
		name:       name,
		specs:      specs,
		routes:     make(map[string][]ScriptEntry),
		routeIndex: make(map[string]int),
	}
}

// AddSequential adds an entry consumed in order by calls with no per-model
// script.
func (s *Scripted) AddSequential(entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequential = append(s.sequential, entry)
}

// AddRouted adds an entry for a specific model name. Used when call order is
// non-deterministic.
func (s *Scripted) AddRouted(model string, entry ScriptEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[model] = append(s.routes[model], entry)
}

// SetHealthErr makes HealthCheck fail.
func (s *Scripted) SetHealthErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// Calls returns a copy of every recorded invocation.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times ExecuteTask ran.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Name implements provider.Adapter.
func (s *Scripted) Name() models.Provider {
	return s.name
}

// SupportedModels implements provider.Adapter.
func (s *Scripted) SupportedModels() []models.ModelSpec {
	out := make([]models.ModelSpec, len(s.specs))
	copy(out, s.specs)
	return out
}

// EstimateCost implements provider.Adapter.
func (s *Scripted) EstimateCost(spec models.ModelSpec, tokens int) float64 {
	return provider.CostFor(spec, tokens)
}

// HealthCheck implements provider.Adapter.
func (s *Scripted) HealthCheck(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

// ExecuteTask implements provider.Adapter.
func (s *Scripted) ExecuteTask(ctx context.Context, spec models.ModelSpec, prompt string, task models.TaskSpec, opts provider.Options) (*provider.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Model: spec.Name, Prompt: prompt, Task: task, Opts: opts})
	entry, err := s.nextEntry(spec.Name)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if entry.BlockUntilCancelled {
		<-ctx.Done()
		return nil, provider.NewError(models.ErrKindCancelled, s.name, spec.Name, ctx.Err())
	}

	if entry.Delay > 0 {
		select {
		case <-time.After(entry.Delay):
		case <-ctx.Done():
			return nil, provider.NewError(models.ErrKindCancelled, s.name, spec.Name, ctx.Err())
		}
	}

	if entry.Err != nil {
		return nil, entry.Err
	}
	if entry.Kind != models.ErrKindNone {
		return nil, provider.NewError(entry.Kind, s.name, spec.Name, errors.New("scripted failure"))
	}

	if opts.Stream {
		for _, r := range entry.Text {
			provider.SafeEmit(opts.OnToken, string(r))
		}
	}

	usage := entry.Usage
	if usage.TotalTokens == 0 {
		usage = models.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	}
	return &provider.Result{Text: entry.Text, Usage: usage}, nil
}

// nextEntry picks the next scripted outcome: routed first, then sequential.
// Callers hold s.mu.
func (s *Scripted) nextEntry(model string) (ScriptEntry, error) {
	if script, ok := s.routes[model]; ok {
		idx := s.routeIndex[model]
		if idx < len(script) {
			s.routeIndex[model] = idx + 1
			return script[idx], nil
		}
	}
	if s.seqIndex < len(s.sequential) {
		entry := s.sequential[s.seqIndex]
		s.seqIndex++
		return entry, nil
	}
	return ScriptEntry{}, fmt.Errorf("scripted adapter: no entry for model %q (call %d)", model, len(s.calls))
}
