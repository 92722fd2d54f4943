// Package progress maintains per-run progress snapshots: dynamic weighted
// stages, keyword step detection, ETA estimation, throttled persistence of
// streaming updates, and terminal freeze semantics.
package progress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// StreamPrefix marks high-frequency streaming messages subject to write
// coalescing.
const StreamPrefix = "[stream]"

// defaultStreamInterval is the minimum gap between persisted streaming
// updates.
const defaultStreamInterval = 500 * time.Millisecond

// Tracker tracks one run. All methods are safe for concurrent use.
type Tracker struct {
	analysisID string
	store      store.Store
	registry   *Registry
	logger     *slog.Logger
	ttl        time.Duration

	// streamInterval throttles streaming writes; tests shrink it.
	streamInterval time.Duration

	mu        sync.Mutex
	defs      []stageDef
	current   int
	status    models.SessionStatus
	started   time.Time
	estimated float64
	message   string
	results   map[string]any
	lastWrite time.Time
}

// Registry is the process-wide set of active trackers, one mutex.
type Registry struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Tracker
}

// NewRegistry creates the tracker registry over the given store. ttl bounds
// the lifetime of persisted progress snapshots.
func NewRegistry(st store.Store, ttl time.Duration) *Registry {
	return &Registry{
		store:  st,
		ttl:    ttl,
		logger: slog.With("component", "progress"),
		active: make(map[string]*Tracker),
	}
}

// Start creates, registers, and persists a tracker for one run.
func (r *Registry) Start(ctx context.Context, analysisID string, agents []models.AgentRole, depth int) *Tracker {
	t := &Tracker{
		analysisID:     analysisID,
		store:          r.store,
		registry:       r,
		logger:         r.logger.With("analysis_id", analysisID),
		ttl:            r.ttl,
		streamInterval: defaultStreamInterval,
		defs:           generateStages(agents, depth),
		status:         models.StatusRunning,
		started:        time.Now(),
		estimated:      EstimateTotalSec(len(agents), depth),
	}

	r.mu.Lock()
	r.active[analysisID] = t
	r.mu.Unlock()

	t.mu.Lock()
	t.persistLocked(ctx)
	t.mu.Unlock()
	return t
}

// Get returns the active tracker for a run, if any.
func (r *Registry) Get(analysisID string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.active[analysisID]
	return t, ok
}

// ActiveIDs returns the ids of all currently registered runs.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.active))
	for id := range r.active {
		out = append(out, id)
	}
	return out
}

// Snapshot loads the persisted snapshot for a run, active or not.
func (r *Registry) Snapshot(ctx context.Context, analysisID string) (*models.ProgressSnapshot, error) {
	if t, ok := r.Get(analysisID); ok {
		snap := t.Snapshot()
		return &snap, nil
	}
	var snap models.ProgressSnapshot
	if err := store.GetJSON(ctx, r.store, store.PrefixProgress+analysisID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *Registry) remove(analysisID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, analysisID)
}

// Update processes a free-form status message: the step is detected from
// keywords, the index never regresses, and streaming messages are coalesced
// to at most one persisted write per interval. Streaming updates after a
// terminal state are silently dropped.
func (t *Tracker) Update(ctx context.Context, message string) {
	streaming := strings.HasPrefix(message, StreamPrefix)

	t.mu.Lock()
	defer t.mu.Unlock()

	if models.TerminalStatus(t.status) {
		if !streaming {
			t.logger.Debug("Ignoring update after terminal state", "message", message)
		}
		return
	}

	if step := t.detectStepLocked(message); step > t.current {
		t.current = step
	}
	t.message = message

	if streaming && time.Since(t.lastWrite) < t.streamInterval {
		return
	}
	t.persistLocked(ctx)
}

// AdvanceTo moves the tracker to the named stage. Unknown names and
// backward moves are no-ops.
func (t *Tracker) AdvanceTo(ctx context.Context, stageName, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if models.TerminalStatus(t.status) {
		return
	}
	for i, d := range t.defs {
		if d.step.Name == stageName {
			if i > t.current {
				t.current = i
			}
			break
		}
	}
	if message != "" {
		t.message = message
	}
	t.persistLocked(ctx)
}

// StageStarted and StageCompleted are the typed event-sink surface used by
// the coordinator, avoiding message parsing for known stage transitions.
func (t *Tracker) StageStarted(ctx context.Context, stageName string) {
	t.AdvanceTo(ctx, stageName, "")
}

// StageCompleted advances past the named stage.
func (t *Tracker) StageCompleted(ctx context.Context, stageName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if models.TerminalStatus(t.status) {
		return
	}
	for i, d := range t.defs {
		if d.step.Name == stageName {
			if next := i + 1; next > t.current && next < len(t.defs) {
				t.current = next
			}
			break
		}
	}
	t.persistLocked(ctx)
}

// MarkCompleted freezes the run as completed, stores the raw results, and
// removes the tracker from the active registry.
func (t *Tracker) MarkCompleted(ctx context.Context, message string, results map[string]any) {
	t.terminal(ctx, models.StatusCompleted, message, results)
}

// MarkFailed freezes the run as failed.
func (t *Tracker) MarkFailed(ctx context.Context, err error) {
	msg := "analysis failed"
	if err != nil {
		msg = err.Error()
	}
	t.terminal(ctx, models.StatusFailed, msg, nil)
}

// MarkCancelled freezes the run as cancelled.
func (t *Tracker) MarkCancelled(ctx context.Context, message string) {
	t.terminal(ctx, models.StatusCancelled, message, nil)
}

func (t *Tracker) terminal(ctx context.Context, status models.SessionStatus, message string, results map[string]any) {
	t.mu.Lock()
	if models.TerminalStatus(t.status) {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.message = message
	t.results = results
	if status == models.StatusCompleted {
		t.current = len(t.defs) - 1
	}
	t.persistLocked(ctx)
	t.mu.Unlock()

	t.registry.remove(t.analysisID)
}

// Snapshot returns the current externally visible state.
func (t *Tracker) Snapshot() models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() models.ProgressSnapshot {
	elapsed := time.Since(t.started).Seconds()

	fraction := 0.0
	for i := 0; i <= t.current && i < len(t.defs); i++ {
		fraction += t.defs[i].step.Weight
	}
	if t.current >= len(t.defs)-1 || t.status == models.StatusCompleted {
		fraction = 1.0
	}

	// ETA: once the original estimate is overrun, re-derive it from the
	// observed pace.
	estimated := t.estimated
	if elapsed > estimated && fraction > 0 {
		estimated = elapsed / fraction
		t.estimated = estimated
	}
	remaining := estimated - elapsed
	if remaining < 0 || models.TerminalStatus(t.status) {
		remaining = 0
	}

	steps := make([]models.ProgressStep, len(t.defs))
	for i, d := range t.defs {
		steps[i] = d.step
	}

	snap := models.ProgressSnapshot{
		AnalysisID:      t.analysisID,
		Status:          t.status,
		CurrentStep:     t.current,
		TotalSteps:      len(t.defs),
		ProgressPercent: fraction * 100,
		ElapsedSec:      elapsed,
		EstimatedSec:    estimated,
		RemainingSec:    remaining,
		LastMessage:     t.message,
		LastUpdateEpoch: time.Now().Unix(),
		Steps:           steps,
		RawResults:      t.results,
	}
	if t.current < len(t.defs) {
		snap.StepName = t.defs[t.current].step.Name
		snap.StepDescription = t.defs[t.current].step.Description
	}
	return snap
}

// persistLocked writes the snapshot to the store. Callers hold t.mu.
func (t *Tracker) persistLocked(ctx context.Context) {
	snap := t.snapshotLocked()
	if err := store.SetJSON(ctx, t.store, store.PrefixProgress+t.analysisID, snap, t.ttl); err != nil {
		t.logger.Warn("Failed to persist progress snapshot", "error", err)
		return
	}
	t.lastWrite = time.Now()
}

// detectStepLocked maps a message onto a stage index by keyword. Generic
// lifecycle markers resolve relative to the current step. Returns the
// current step when nothing matches. Callers hold t.mu.
func (t *Tracker) detectStepLocked(message string) int {
	lower := strings.ToLower(strings.TrimPrefix(message, StreamPrefix))

	if strings.Contains(lower, "module completed") {
		if next := t.current + 1; next < len(t.defs) {
			return next
		}
		return t.current
	}
	if strings.Contains(lower, "module started") || strings.Contains(lower, "tool call") {
		return t.current
	}

	// Scan forward only: keyword hits behind the current step never regress.
	for i := t.current + 1; i < len(t.defs); i++ {
		for _, kw := range t.defs[i].keywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return t.current
}
