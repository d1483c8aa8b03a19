package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/sanitize"
	"github.com/vitalsync/server/pkg/types"
)

// Sync window sizes, in days.
const (
	WindowInitial   = 30 // first pull on connection
	WindowOnDemand  = 2  // today + yesterday covers provider processing lag
	WindowScheduled = 1  // 15-minute schedule
)

// recentActivityCount is how many of the newest activities each sync
// upserts alongside the daily metrics.
const recentActivityCount = 20

// Orchestrator drives a bounded-day pull of daily metrics plus recent
// activities. Used by on-demand, scheduled and post-login flows.
type Orchestrator struct {
	DB     shared.Database
	Logger *slog.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Sync pulls the last windowDays of daily metrics and the most recent
// activities for one user, staging merge writes through a single batch.
func (o *Orchestrator) Sync(ctx context.Context, userID string, p Provider, windowDays int, source string) error {
	batch := o.DB.NewBatch()
	today := o.now().UTC()

	for i := 0; i < windowDays; i++ {
		ds := today.AddDate(0, 0, -i).Format(DateLayout)
		if err := stageDay(ctx, o.DB, batch, o.Logger, userID, p, ds, source); err != nil {
			return fmt.Errorf("sync day %s: %w", ds, err)
		}
	}

	activities := Fetch("get_activities", func() ([]map[string]any, error) {
		return p.ListActivities(ctx, 0, recentActivityCount)
	}).OrDefault(o.Logger, nil)
	if err := stageActivities(ctx, o.DB, batch, o.Logger, userID, activities, source); err != nil {
		return fmt.Errorf("sync activities: %w", err)
	}

	if err := flushOrRecover(ctx, o.DB, o.Logger, batch); err != nil {
		return fmt.Errorf("sync flush: %w", err)
	}
	return nil
}

// SyncAll runs the full restore→sync→persist sequence for every
// connected user in isolation: a failure for one user is logged and the
// loop proceeds — no global abort, no rollback. Partial writes stand;
// merge semantics make partial progress safe to resume.
func (o *Orchestrator) SyncAll(ctx context.Context, sm *SessionManager) (synced, failed int) {
	userIDs, err := o.DB.ListConnectedUsers(ctx)
	if err != nil {
		o.Logger.Error("Failed to list connected users", "error", err)
		return 0, 0
	}

	for _, userID := range userIDs {
		if err := o.syncOne(ctx, sm, userID); err != nil {
			o.Logger.Error("Sync failed for user, continuing", "user_id", userID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed
}

func (o *Orchestrator) syncOne(ctx context.Context, sm *SessionManager, userID string) error {
	p, err := sm.Restore(ctx, userID)
	if err != nil {
		return err
	}
	if err := o.Sync(ctx, userID, p, WindowScheduled, types.SourcePull); err != nil {
		return err
	}
	return sm.Persist(ctx, userID, p)
}

// stageDay fetches all metric categories for one date, sanitizes each
// independently, and stages one merge-write per metric into that date's
// document — a poison field never blocks its siblings.
func stageDay(ctx context.Context, db shared.Database, batch shared.Batch, logger *slog.Logger, userID string, p Provider, ds, source string) error {
	path := fmt.Sprintf("%s/%s/%s/%s", shared.CollectionUsers, userID, shared.CollectionDailies, ds)

	for _, metric := range dailyMetrics {
		payload := Fetch(metric.field, func() (map[string]any, error) {
			return metric.fn(ctx, p, ds)
		}).OrDefault(logger, map[string]any{})

		fields := map[string]any{
			metric.field:  sanitize.Value(payload, sanitize.MaxDepth),
			"date":        ds,
			"processedAt": shared.ServerTimestamp,
			"source":      source,
		}
		if err := stageWithFallback(ctx, db, batch, logger, path, metric.field, fields); err != nil {
			return err
		}
	}
	return nil
}

// stageActivities upserts sanitized activity payloads keyed by the
// provider's activity ID.
func stageActivities(ctx context.Context, db shared.Database, batch shared.Batch, logger *slog.Logger, userID string, activities []map[string]any, source string) error {
	for _, act := range activities {
		id := activityID(act)
		if id == "" {
			continue
		}
		fields := sanitize.Fields(act, sanitize.MaxDepth)
		fields["processedAt"] = shared.ServerTimestamp
		fields["source"] = source

		path := fmt.Sprintf("%s/%s/%s/%s", shared.CollectionUsers, userID, shared.CollectionActivities, id)
		if err := stageWithFallback(ctx, db, batch, logger, path, "activity "+id, fields); err != nil {
			return err
		}
	}
	return nil
}

// stageWithFallback stages a write, distinguishing the two failure
// boundaries. A staging-time rejection concerns this payload alone: it
// is retried as a lossy string round-trip and finally dropped with a
// warning, siblings unaffected. A *shared.CommitError means a whole
// auto-flushed chunk failed to commit; that chunk is recovered write by
// write, and an unrecoverable chunk fails the sync so the caller never
// reports success over uncommitted data.
func stageWithFallback(ctx context.Context, db shared.Database, batch shared.Batch, logger *slog.Logger, path, what string, fields map[string]any) error {
	err := batch.Set(ctx, path, fields)
	if err == nil {
		return nil
	}
	var ce *shared.CommitError
	if errors.As(err, &ce) {
		return recoverChunk(ctx, db, logger, ce)
	}
	logger.Warn("Write rejected, retrying with lossy payload", "path", path, "field", what, "error", err)

	if err := batch.Set(ctx, path, lossyFields(fields)); err != nil {
		if errors.As(err, &ce) {
			return recoverChunk(ctx, db, logger, ce)
		}
		logger.Warn("Dropping field after lossy retry failed", "path", path, "field", what, "error", err)
	}
	return nil
}

// flushOrRecover commits the remaining chunk, falling back to
// per-document recovery when the commit itself is rejected.
func flushOrRecover(ctx context.Context, db shared.Database, logger *slog.Logger, batch shared.Batch) error {
	err := batch.Flush(ctx)
	if err == nil {
		return nil
	}
	var ce *shared.CommitError
	if errors.As(err, &ce) {
		return recoverChunk(ctx, db, logger, ce)
	}
	return err
}

// recoverChunk re-commits a failed chunk one document at a time. A write
// the store rejects on its own is retried in lossy form; a write that
// fails even as plain strings signals the store itself is unhealthy, and
// the error propagates rather than dropping committed-looking data.
func recoverChunk(ctx context.Context, db shared.Database, logger *slog.Logger, ce *shared.CommitError) error {
	logger.Warn("Batch commit failed, retrying chunk per document", "writes", len(ce.Writes), "error", ce.Err)

	for _, w := range ce.Writes {
		err := commitOne(ctx, db, w.Path, w.Fields)
		if err == nil {
			continue
		}
		logger.Warn("Write rejected, retrying with lossy payload", "path", w.Path, "error", err)
		if err := commitOne(ctx, db, w.Path, lossyFields(w.Fields)); err != nil {
			return fmt.Errorf("recover %s: %w", w.Path, err)
		}
	}
	return nil
}

// commitOne commits a single merge write in its own batch.
func commitOne(ctx context.Context, db shared.Database, path string, fields map[string]any) error {
	b := db.NewBatch()
	if err := b.Set(ctx, path, fields); err != nil {
		return err
	}
	return b.Flush(ctx)
}

// lossyFields stringifies every non-envelope field of a write.
func lossyFields(fields map[string]any) map[string]any {
	lossy := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "processedAt", "source", "date":
			lossy[k] = v
		default:
			lossy[k] = sanitize.Lossy(v)
		}
	}
	return lossy
}

// activityID normalizes the provider's activity identifier, which
// arrives as a JSON number.
func activityID(act map[string]any) string {
	switch v := act["activityId"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
