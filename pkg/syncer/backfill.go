package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/types"
)

// Backfill self-limits well under the caller's execution-time ceiling.
const (
	// DefaultDaysBack is the historical horizon when the request does
	// not name one.
	DefaultDaysBack = 365

	// ChunkDays is how many days one day-window invocation processes.
	ChunkDays = 60

	// ActivityPageSize is the provider's activity listing page size.
	ActivityPageSize = 100

	// MaxPagesPerRun caps one page-cursor invocation (50 pages = 5000
	// activities).
	MaxPagesPerRun = 50
)

// BackfillRequest is the tagged resume cursor. A request naming
// StartPage selects page-cursor mode; otherwise day-window mode runs.
// The two schemes never mix: one counts days, the other activity pages.
type BackfillRequest struct {
	DaysBack    int  `json:"daysBack,omitempty"`
	StartOffset int  `json:"startOffset,omitempty"`
	StartPage   *int `json:"startPage,omitempty"`
}

// PageMode reports which cursor variant the request supplied.
func (r BackfillRequest) PageMode() bool { return r.StartPage != nil }

// BackfillResult tells the caller whether to re-invoke and with which
// cursor.
type BackfillResult struct {
	Status          string `json:"status"`
	DaysProcessed   int    `json:"daysProcessed,omitempty"`
	TotalActivities int    `json:"totalActivities"`
	Progress        int    `json:"progress,omitempty"`
	HasMore         bool   `json:"hasMore"`
	NextOffset      *int   `json:"nextOffset,omitempty"`
	NextPage        *int   `json:"nextPage,omitempty"`
}

// BackfillController drives the exhaustive historical pull across
// multiple bounded invocations. Re-invocation with the same cursor is
// idempotent: every write is a merge.
type BackfillController struct {
	DB     shared.Database
	Stats  *Aggregator
	Notify shared.Notifier
	Logger *slog.Logger

	Now func() time.Time
}

func (c *BackfillController) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run executes one bounded backfill invocation. The caller persists the
// session afterwards regardless of completion state — it may have been
// refreshed mid-run.
func (c *BackfillController) Run(ctx context.Context, userID string, p Provider, req BackfillRequest) (*BackfillResult, error) {
	if req.PageMode() {
		return c.runPages(ctx, userID, p, *req.StartPage)
	}
	return c.runDayWindow(ctx, userID, p, req)
}

// runDayWindow processes a fixed chunk of the historical day range and
// reports the resume offset.
func (c *BackfillController) runDayWindow(ctx context.Context, userID string, p Provider, req BackfillRequest) (*BackfillResult, error) {
	daysBack := req.DaysBack
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}
	if req.StartOffset < 0 {
		return nil, fmt.Errorf("negative start offset %d", req.StartOffset)
	}

	start := req.StartOffset
	end := start + ChunkDays
	if end > daysBack {
		end = daysBack
	}

	batch := c.DB.NewBatch()
	today := c.now().UTC()
	for i := start; i < end; i++ {
		ds := today.AddDate(0, 0, -i).Format(DateLayout)
		if err := stageDay(ctx, c.DB, batch, c.Logger, userID, p, ds, types.SourceBackfill); err != nil {
			return nil, fmt.Errorf("backfill day %s: %w", ds, err)
		}
	}
	// The cursor only advances once every staged day is committed; a
	// failed chunk fails the invocation and the caller retries the same
	// offset.
	if err := flushOrRecover(ctx, c.DB, c.Logger, batch); err != nil {
		return nil, fmt.Errorf("backfill flush: %w", err)
	}

	progress := int(math.Min(95, math.Round(float64(end)/float64(daysBack)*100)))
	hasMore := end < daysBack

	res := &BackfillResult{
		Status:        "ok",
		DaysProcessed: end - start,
		Progress:      progress,
		HasMore:       hasMore,
	}
	if hasMore {
		next := end
		res.NextOffset = &next
		if err := c.DB.UpdateGarminConfig(ctx, userID, map[string]any{
			"backfillProgress": progress,
		}); err != nil {
			return nil, fmt.Errorf("update progress: %w", err)
		}
		return res, nil
	}

	res.Progress = 100
	if err := c.complete(ctx, userID); err != nil {
		return nil, err
	}
	return res, nil
}

// runPages paginates the provider's activity listing up to the page
// budget, stopping early on a short page (end of data). Reaching the end
// triggers stats aggregation synchronously before marking completion.
func (c *BackfillController) runPages(ctx context.Context, userID string, p Provider, startPage int) (*BackfillResult, error) {
	if startPage < 0 {
		return nil, fmt.Errorf("negative start page %d", startPage)
	}

	batch := c.DB.NewBatch()
	page := startPage
	total := 0
	hasMore := true

	for done := 0; done < MaxPagesPerRun; done++ {
		activities, err := p.ListActivities(ctx, page*ActivityPageSize, ActivityPageSize)
		if err != nil {
			// Resumability is the retry mechanism: surface the error and
			// let the caller re-invoke with the same cursor.
			return nil, fmt.Errorf("list activities page %d: %w", page, err)
		}
		if err := stageActivities(ctx, c.DB, batch, c.Logger, userID, activities, types.SourceBackfill); err != nil {
			return nil, fmt.Errorf("backfill page %d: %w", page, err)
		}
		total += len(activities)

		if len(activities) < ActivityPageSize {
			hasMore = false
			page++
			break
		}
		page++
	}
	if err := flushOrRecover(ctx, c.DB, c.Logger, batch); err != nil {
		return nil, fmt.Errorf("backfill flush: %w", err)
	}

	res := &BackfillResult{
		Status:          "ok",
		TotalActivities: total,
		HasMore:         hasMore,
	}
	if hasMore {
		next := page
		res.NextPage = &next
		return res, nil
	}

	if err := c.Stats.RecomputeAll(ctx, userID); err != nil {
		return nil, fmt.Errorf("recompute stats: %w", err)
	}
	if err := c.complete(ctx, userID); err != nil {
		return nil, err
	}
	return res, nil
}

// complete marks the backfill finished and notifies the user's devices.
func (c *BackfillController) complete(ctx context.Context, userID string) error {
	if err := c.DB.UpdateGarminConfig(ctx, userID, map[string]any{
		"backfillStatus":   types.BackfillComplete,
		"backfillProgress": 100,
	}); err != nil {
		return fmt.Errorf("mark backfill complete: %w", err)
	}
	if c.Notify != nil {
		if err := c.Notify.SendPushNotification(ctx, userID,
			"Garmin history imported",
			"Your full activity history is now available.",
			map[string]string{"type": "backfill_complete"},
		); err != nil {
			c.Logger.Warn("Backfill completion notification failed", "user_id", userID, "error", err)
		}
	}
	return nil
}
