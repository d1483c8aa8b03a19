package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/types"
)

// streamPageSize bounds how many activity documents one store page
// holds while recomputing rollups.
const streamPageSize = 1000

const (
	trailingWeeks  = 52
	trailingMonths = 24
)

// Aggregator recomputes the week/month/year rollup documents from the
// full activity log. The computation is a pure function of that log, so
// a wholesale overwrite is always safe.
type Aggregator struct {
	DB     shared.Database
	Logger *slog.Logger

	Now func() time.Time
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// activitySummary is the slice of an activity payload the rollups need.
// Dates stay as ISO strings: lexical ordering equals chronological
// ordering, so period filtering is plain string comparison.
type activitySummary struct {
	Date     string
	TypeKey  string
	Duration float64
	Distance float64
	Calories float64
}

// RecomputeAll rebuilds every rollup document for the user: 52 trailing
// Monday-start weeks, 24 trailing calendar months, and every calendar
// year present in the log plus the current year.
func (a *Aggregator) RecomputeAll(ctx context.Context, userID string) error {
	var summaries []activitySummary
	err := a.DB.StreamActivities(ctx, userID, streamPageSize, func(id string, data map[string]any) error {
		s, ok := summarize(data)
		if !ok {
			a.Logger.Warn("Skipping activity without a usable start date", "user_id", userID, "activity_id", id)
			return nil
		}
		summaries = append(summaries, s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("stream activities: %w", err)
	}

	now := a.now().UTC()
	batch := a.DB.NewBatch()

	var periods []period
	periods = append(periods, weeklyPeriods(now)...)
	periods = append(periods, monthlyPeriods(now)...)
	periods = append(periods, yearlyPeriods(now, summaries)...)
	for _, p := range periods {
		if err := a.stagePeriod(ctx, batch, userID, p, summaries); err != nil {
			return err
		}
	}

	if err := batch.Flush(ctx); err != nil {
		return fmt.Errorf("stats flush: %w", err)
	}
	a.Logger.Info("Recomputed activity stats", "user_id", userID, "activities", len(summaries))
	return nil
}

type period struct {
	Type  string
	Key   string
	Start string
	End   string
}

func (a *Aggregator) stagePeriod(ctx context.Context, batch shared.Batch, userID string, p period, summaries []activitySummary) error {
	stats := types.ActivityStats{
		PeriodType:  p.Type,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		ByType:      map[string]types.PeriodTotals{},
	}
	for _, s := range summaries {
		if s.Date < p.Start || s.Date > p.End {
			continue
		}
		stats.ActivityCount++
		stats.TotalDurationSeconds += s.Duration
		stats.TotalDistanceMeters += s.Distance
		stats.TotalCalories += s.Calories

		t := stats.ByType[s.TypeKey]
		t.Count++
		t.DurationSeconds += s.Duration
		t.DistanceMeters += s.Distance
		t.Calories += s.Calories
		stats.ByType[s.TypeKey] = t
	}

	path := fmt.Sprintf("%s/%s/%s/%s_%s",
		shared.CollectionUsers, userID, shared.CollectionActivityStats, p.Type, p.Key)
	fields := map[string]any{
		"periodType":           stats.PeriodType,
		"periodStart":          stats.PeriodStart,
		"periodEnd":            stats.PeriodEnd,
		"activityCount":        stats.ActivityCount,
		"totalDurationSeconds": stats.TotalDurationSeconds,
		"totalDistanceMeters":  stats.TotalDistanceMeters,
		"totalCalories":        stats.TotalCalories,
		"byType":               byTypeFields(stats.ByType),
		"computedAt":           shared.ServerTimestamp,
	}
	// Rollup payloads are generated here, never poison; a rejected write
	// means the store is unhealthy and the recompute must not claim
	// success.
	if err := batch.Set(ctx, path, fields); err != nil {
		return fmt.Errorf("stage rollup %s: %w", p.Key, err)
	}
	return nil
}

func byTypeFields(byType map[string]types.PeriodTotals) map[string]any {
	out := make(map[string]any, len(byType))
	for k, t := range byType {
		out[k] = map[string]any{
			"count":    t.Count,
			"duration": t.DurationSeconds,
			"distance": t.DistanceMeters,
			"calories": t.Calories,
		}
	}
	return out
}

// weeklyPeriods returns the 52 trailing Monday-start weeks, most recent
// first.
func weeklyPeriods(now time.Time) []period {
	monday := now.AddDate(0, 0, -mondayOffset(now.Weekday()))
	periods := make([]period, 0, trailingWeeks)
	for i := 0; i < trailingWeeks; i++ {
		start := monday.AddDate(0, 0, -7*i)
		end := start.AddDate(0, 0, 6)
		ds := start.Format(DateLayout)
		periods = append(periods, period{
			Type:  "week",
			Key:   ds,
			Start: ds,
			End:   end.Format(DateLayout),
		})
	}
	return periods
}

func mondayOffset(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

// monthlyPeriods returns the 24 trailing calendar months, walking back
// with explicit year rollover.
func monthlyPeriods(now time.Time) []period {
	year, month := now.Year(), int(now.Month())
	periods := make([]period, 0, trailingMonths)
	for i := 0; i < trailingMonths; i++ {
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		ds := start.Format(DateLayout)
		periods = append(periods, period{
			Type:  "month",
			Key:   ds,
			Start: ds,
			End:   end.Format(DateLayout),
		})
		month--
		if month == 0 {
			month = 12
			year--
		}
	}
	return periods
}

// yearlyPeriods covers every calendar year seen in the activity set plus
// the current year even when it has no activities yet.
func yearlyPeriods(now time.Time, summaries []activitySummary) []period {
	years := map[string]bool{fmt.Sprintf("%04d", now.Year()): true}
	for _, s := range summaries {
		if len(s.Date) >= 4 {
			years[s.Date[:4]] = true
		}
	}
	periods := make([]period, 0, len(years))
	for y := range years {
		periods = append(periods, period{
			Type:  "year",
			Key:   y,
			Start: y + "-01-01",
			End:   y + "-12-31",
		})
	}
	return periods
}

// summarize extracts the rollup-relevant fields from one raw activity
// payload. Returns false when no usable start date is present.
func summarize(data map[string]any) (activitySummary, bool) {
	date := activityDate(data)
	if date == "" {
		return activitySummary{}, false
	}
	duration := asFloat(data["duration"])
	if duration == 0 {
		duration = asFloat(data["elapsedDuration"])
	}
	return activitySummary{
		Date:     date,
		TypeKey:  activityTypeKey(data),
		Duration: duration,
		Distance: asFloat(data["distance"]),
		Calories: asFloat(data["calories"]),
	}, true
}

func activityDate(data map[string]any) string {
	for _, field := range []string{"startTimeLocal", "startTimeGMT"} {
		if s, ok := data[field].(string); ok && len(s) >= 10 {
			return s[:10]
		}
	}
	return ""
}

func activityTypeKey(data map[string]any) string {
	if at, ok := data["activityType"].(map[string]any); ok {
		if key, ok := at["typeKey"].(string); ok && key != "" {
			return key
		}
	}
	return "other"
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
