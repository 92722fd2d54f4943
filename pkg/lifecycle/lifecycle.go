// Package lifecycle tracks the worker behind each analysis run: liveness,
// status resolution, and cooperative pause/resume/cancel control.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// ErrNotFound indicates the run is unknown to the tracker and the store.
var ErrNotFound = errors.New("lifecycle: analysis not found")

// Control is the cooperative control token owned by one run. Workers check
// it between tasks and rounds; in-flight adapter calls are cancelled through
// the run context instead.
type Control struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	resumeCh  chan struct{}
	cancel    context.CancelFunc
}

// NewControl wraps a run's cancel function into a control token.
func NewControl(cancel context.CancelFunc) *Control {
	return &Control{cancel: cancel}
}

// Pause stops new tasks from starting. In-flight tasks finish normally.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume lifts a pause. Resuming a non-paused run is a no-op.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = nil
}

// Cancel marks the run cancelled and aborts its context. Idempotent.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// Cancelled reports whether the run was cancelled.
func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Paused reports whether the run is currently paused.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Checkpoint blocks while the run is paused and reports cancellation.
// Workers call it between tasks and debate rounds.
func (c *Control) Checkpoint(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.cancelled {
			c.mu.Unlock()
			return context.Canceled
		}
		if !c.paused {
			c.mu.Unlock()
			return nil
		}
		ch := c.resumeCh
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Handle is the registered worker for one run.
type Handle struct {
	AnalysisID string
	Control    *Control
	doneCh     <-chan struct{}
}

// NewHandle builds a worker handle. doneCh closes when the worker exits.
func NewHandle(analysisID string, control *Control, doneCh <-chan struct{}) *Handle {
	return &Handle{AnalysisID: analysisID, Control: control, doneCh: doneCh}
}

// Alive reports whether the worker goroutine is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.doneCh:
		return false
	default:
		return true
	}
}

// Tracker is the lifecycle registry. Single mutex, safe for concurrent use.
type Tracker struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*Handle
}

// NewTracker creates a lifecycle tracker over the given store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{
		store:   st,
		logger:  slog.With("component", "lifecycle"),
		workers: make(map[string]*Handle),
	}
}

// Register records the worker handle for a run.
func (t *Tracker) Register(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers[h.AnalysisID] = h
}

// Unregister removes a run's handle.
func (t *Tracker) Unregister(analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.workers, analysisID)
}

// IsAlive reports worker liveness, auto-unregistering dead handles.
func (t *Tracker) IsAlive(analysisID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.workers[analysisID]
	if !ok {
		return false
	}
	if !h.Alive() {
		delete(t.workers, analysisID)
		return false
	}
	return true
}

// control returns the control token for a live run.
func (t *Tracker) control(analysisID string) (*Control, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.workers[analysisID]
	if !ok || h.Control == nil {
		return nil, false
	}
	return h.Control, true
}

// Status resolves a run's state: a live worker means running, otherwise the
// persisted snapshot decides; a snapshot with a non-terminal status and no
// live worker is an abnormal termination and reads as failed.
func (t *Tracker) Status(ctx context.Context, analysisID string) (models.SessionStatus, error) {
	if t.IsAlive(analysisID) {
		if c, ok := t.control(analysisID); ok && c.Paused() {
			return models.StatusPaused, nil
		}
		return models.StatusRunning, nil
	}

	var snap models.ProgressSnapshot
	err := store.GetJSON(ctx, t.store, store.PrefixProgress+analysisID, &snap)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lifecycle: loading progress for %s: %w", analysisID, err)
	}
	if models.TerminalStatus(snap.Status) {
		return snap.Status, nil
	}
	t.logger.Warn("Run has a snapshot but no live worker, reporting failed",
		"analysis_id", analysisID, "snapshot_status", snap.Status)
	return models.StatusFailed, nil
}

// Pause pauses a live run. Idempotent; pausing an unknown run is an error.
func (t *Tracker) Pause(analysisID string) error {
	c, ok := t.control(analysisID)
	if !ok {
		return ErrNotFound
	}
	c.Pause()
	t.logger.Info("Analysis paused", "analysis_id", analysisID)
	return nil
}

// Resume resumes a paused run. Idempotent.
func (t *Tracker) Resume(analysisID string) error {
	c, ok := t.control(analysisID)
	if !ok {
		return ErrNotFound
	}
	c.Resume()
	t.logger.Info("Analysis resumed", "analysis_id", analysisID)
	return nil
}

// Cancel cancels a run cooperatively. Idempotent; cancelling an already
// finished run is not an error.
func (t *Tracker) Cancel(analysisID string) error {
	c, ok := t.control(analysisID)
	if !ok {
		return ErrNotFound
	}
	c.Cancel()
	t.logger.Info("Analysis cancelled", "analysis_id", analysisID)
	return nil
}

// LatestAnalysisID scans the persisted progress snapshots and returns the
// most recently updated run id, or "" when none exist.
func (t *Tracker) LatestAnalysisID(ctx context.Context) (string, error) {
	keys, err := t.store.Keys(ctx, store.PrefixProgress)
	if err != nil {
		return "", err
	}

	var latest string
	var latestEpoch int64
	for _, key := range keys {
		var snap models.ProgressSnapshot
		if err := store.GetJSON(ctx, t.store, key, &snap); err != nil {
			continue
		}
		if snap.LastUpdateEpoch >= latestEpoch {
			latestEpoch = snap.LastUpdateEpoch
			latest = strings.TrimPrefix(key, store.PrefixProgress)
		}
	}
	return latest, nil
}

// RecoverStale marks snapshots of dead runs as failed, rewritten with the
// given ttl. Called once at startup so crash leftovers do not read as
// running forever.
func (t *Tracker) RecoverStale(ctx context.Context, ttl time.Duration) (int, error) {
	keys, err := t.store.Keys(ctx, store.PrefixProgress)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, key := range keys {
		var snap models.ProgressSnapshot
		if err := store.GetJSON(ctx, t.store, key, &snap); err != nil {
			continue
		}
		if models.TerminalStatus(snap.Status) {
			continue
		}
		id := strings.TrimPrefix(key, store.PrefixProgress)
		if t.IsAlive(id) {
			continue
		}
		snap.Status = models.StatusFailed
		snap.LastMessage = "recovered after abnormal termination"
		if err := store.SetJSON(ctx, t.store, key, snap, ttl); err != nil {
			t.logger.Warn("Failed to persist recovered snapshot", "analysis_id", id, "error", err)
			continue
		}
		recovered++
		t.logger.Warn("Recovered stale analysis", "analysis_id", id)
	}
	return recovered, nil
}
