// Package usage tracks token usage and cost per task and enforces
// per-session budget caps.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// recordRetryDelay is the single bounded retry before giving up on a
// usage append. Usage logging is best-effort; it must never stall a task.
const recordRetryDelay = 100 * time.Millisecond

// Tracker is the usage and budget tracker. Per-session cost is accumulated
// in memory for the budget gate; every record is also appended to the
// usage.log stream for audit and the API usage endpoint.
type Tracker struct {
	store  store.Store
	logger *slog.Logger

	mu          sync.Mutex
	sessionCost map[string]float64
	sessions    map[string]*models.CollaborationSession
}

// NewTracker creates a usage tracker on top of the given store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{
		store:       st,
		logger:      slog.With("component", "usage_tracker"),
		sessionCost: make(map[string]float64),
		sessions:    make(map[string]*models.CollaborationSession),
	}
}

// Record accounts one execution. The stream append gets one bounded retry
// and is otherwise dropped with a warning, so usage logging never blocks
// the task path.
func (t *Tracker) Record(ctx context.Context, rec models.UsageRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.sessionCost[rec.SessionID] += rec.EstimatedCost
	t.mu.Unlock()

	if err := store.AppendJSON(ctx, t.store, store.StreamUsageLog, rec); err != nil {
		select {
		case <-time.After(recordRetryDelay):
		case <-ctx.Done():
			return
		}
		if err := store.AppendJSON(ctx, t.store, store.StreamUsageLog, rec); err != nil {
			t.logger.Warn("Dropping usage record after retry",
				"session_id", rec.SessionID,
				"model", rec.ModelName,
				"error", err)
		}
	}
}

// SessionCost returns the accumulated cost for a session.
func (t *Tracker) SessionCost(sessionID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionCost[sessionID]
}

// CheckBudget reports whether a session may start another task under the
// given cap, along with the current spend. The budget is exceeded only once
// spend passes the cap, so a task at exactly the cap may still start. A
// non-positive cap disables the gate. In-flight tasks are never interrupted;
// only new tasks are rejected.
func (t *Tracker) CheckBudget(sessionID string, budgetCap float64) (bool, float64) {
	spent := t.SessionCost(sessionID)
	if budgetCap <= 0 {
		return true, spent
	}
	return spent <= budgetCap, spent
}

// BeginSession opens the accounting scope for one collaboration run.
// Recording against an unopened session opens a bare scope on demand, so
// calling this first is optional but keeps mode and participants on record.
func (t *Tracker) BeginSession(sessionID string, mode models.CollaborationMode, participants []string, maxDebateRounds int, budgetCap float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; ok {
		return
	}
	now := time.Now()
	t.sessions[sessionID] = &models.CollaborationSession{
		SessionID:       sessionID,
		Mode:            mode,
		Participants:    participants,
		MaxDebateRounds: maxDebateRounds,
		BudgetCap:       budgetCap,
		Status:          models.StatusRunning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// RecordTask folds one terminal task result into the session metrics.
func (t *Tracker) RecordTask(sessionID string, result *models.TaskResult, confidence float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(sessionID)
	s.Metrics.RecordTask(result, confidence)
	s.UpdatedAt = time.Now()
}

// EndSession marks the accounting scope terminal.
func (t *Tracker) EndSession(sessionID string, status models.SessionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session(sessionID)
	s.Status = status
	s.UpdatedAt = time.Now()
}

// Session returns a copy of the accounting scope for one session.
func (t *Tracker) Session(sessionID string) (models.CollaborationSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return models.CollaborationSession{}, false
	}
	out := *s
	if s.Metrics.ModelsUsed != nil {
		used := make(map[string]int, len(s.Metrics.ModelsUsed))
		for name, n := range s.Metrics.ModelsUsed {
			used[name] = n
		}
		out.Metrics.ModelsUsed = used
	}
	return out, true
}

// session returns the scope for sessionID, opening one if needed.
// Callers must hold t.mu.
func (t *Tracker) session(sessionID string) *models.CollaborationSession {
	s, ok := t.sessions[sessionID]
	if !ok {
		now := time.Now()
		s = &models.CollaborationSession{
			SessionID: sessionID,
			Status:    models.StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}
		t.sessions[sessionID] = s
	}
	return s
}

// SessionRecords returns every usage record logged for one session, in
// write order.
func (t *Tracker) SessionRecords(ctx context.Context, sessionID string) ([]models.UsageRecord, error) {
	raw, err := t.store.Stream(ctx, store.StreamUsageLog)
	if err != nil {
		return nil, err
	}

	var out []models.UsageRecord
	for _, data := range raw {
		var rec models.UsageRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			t.logger.Warn("Skipping corrupt usage record", "error", err)
			continue
		}
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}
