package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/finsight-ai/finsight/pkg/lifecycle"
	"github.com/finsight-ai/finsight/pkg/models"
	"github.com/finsight-ai/finsight/pkg/store"
)

// ErrNotFound indicates the analysis id is unknown to the orchestrator.
var ErrNotFound = errors.New("orchestrator: analysis not found")

// ListEntry is one row of ListLatest.
type ListEntry struct {
	AnalysisID string               `json:"analysis_id"`
	Status     models.SessionStatus `json:"status"`
	Symbol     string               `json:"symbol"`
	CreatedAt  time.Time            `json:"created_at"`
}

// GetProgress returns the live or persisted progress snapshot.
func (o *Orchestrator) GetProgress(ctx context.Context, analysisID string) (*models.ProgressSnapshot, error) {
	snap, err := o.progress.Snapshot(ctx, analysisID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return snap, err
}

// GetResult returns the analysis run record, including partial per-agent
// results for failed runs.
func (o *Orchestrator) GetResult(ctx context.Context, analysisID string) (*models.AnalysisRun, error) {
	var rec models.AnalysisRun
	err := store.GetJSON(ctx, o.store, store.PrefixAnalysis+analysisID, &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Cancel requests cooperative cancellation. Cancelling a terminal run is a
// no-op.
func (o *Orchestrator) Cancel(ctx context.Context, analysisID string) error {
	return o.controlOp(ctx, analysisID, o.runs.Cancel)
}

// Pause suspends the run at its next checkpoint. Idempotent.
func (o *Orchestrator) Pause(ctx context.Context, analysisID string) error {
	return o.controlOp(ctx, analysisID, o.runs.Pause)
}

// Resume releases a paused run. Idempotent.
func (o *Orchestrator) Resume(ctx context.Context, analysisID string) error {
	return o.controlOp(ctx, analysisID, o.runs.Resume)
}

// controlOp applies a lifecycle operation, treating terminal runs as
// successful no-ops so the control endpoints stay idempotent.
func (o *Orchestrator) controlOp(ctx context.Context, analysisID string, op func(string) error) error {
	err := op(analysisID)
	if !errors.Is(err, lifecycle.ErrNotFound) {
		return err
	}
	rec, recErr := o.GetResult(ctx, analysisID)
	if recErr != nil {
		return ErrNotFound
	}
	if models.TerminalStatus(rec.Status) {
		return nil
	}
	return ErrNotFound
}

// ListLatest returns the most recently started runs, newest first. The
// status of non-terminal entries is reconciled against worker liveness.
func (o *Orchestrator) ListLatest(ctx context.Context, limit int) ([]ListEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	keys, err := o.store.Keys(ctx, store.PrefixAnalysis)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(keys))
	for _, key := range keys {
		var rec models.AnalysisRun
		if err := store.GetJSON(ctx, o.store, key, &rec); err != nil {
			o.logger.Warn("Skipping unreadable analysis record", "key", key, "error", err)
			continue
		}
		status := rec.Status
		if !models.TerminalStatus(status) {
			if live, err := o.runs.Status(ctx, rec.AnalysisID); err == nil {
				status = live
			}
		}
		entries = append(entries, ListEntry{
			AnalysisID: rec.AnalysisID,
			Status:     status,
			Symbol:     rec.StockSymbol,
			CreatedAt:  rec.StartedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// SessionUsage returns the usage records attributed to one run.
func (o *Orchestrator) SessionUsage(ctx context.Context, analysisID string) ([]models.UsageRecord, error) {
	return o.usage.SessionRecords(ctx, analysisID)
}

// Models returns the full catalog with live availability.
func (o *Orchestrator) Models() []models.ModelSpec {
	return o.catalog.All()
}

// HealthReport returns per-provider health from the catalog prober.
func (o *Orchestrator) HealthReport() map[models.Provider]error {
	return o.catalog.HealthReport()
}
