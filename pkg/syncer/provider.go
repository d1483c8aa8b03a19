// Package syncer implements the synchronization core: session
// restore/persist, the bounded daily pull, resumable historical
// backfill, and multi-period activity rollups.
package syncer

import (
	"context"

	"github.com/vitalsync/server/pkg/garmin"
)

// DateLayout is the calendar-date form used for document IDs and all
// date comparisons. ISO dates sort lexically in chronological order.
const DateLayout = "2006-01-02"

// Provider is the narrow surface of the wearable-data API the core
// consumes. *garmin.Client implements it; tests substitute mocks.
type Provider interface {
	GetStats(ctx context.Context, date string) (map[string]any, error)
	GetHeartRates(ctx context.Context, date string) (map[string]any, error)
	GetSleep(ctx context.Context, date string) (map[string]any, error)
	GetStress(ctx context.Context, date string) (map[string]any, error)
	GetBodyComposition(ctx context.Context, date string) (map[string]any, error)
	GetHRV(ctx context.Context, date string) (map[string]any, error)
	GetSpO2(ctx context.Context, date string) (map[string]any, error)
	GetRespiration(ctx context.Context, date string) (map[string]any, error)
	GetTrainingReadiness(ctx context.Context, date string) (map[string]any, error)

	ListActivities(ctx context.Context, start, limit int) ([]map[string]any, error)

	FullName(ctx context.Context) (string, error)
	SocialProfile(ctx context.Context) (map[string]any, error)

	SetDisplayName(name string)
	Session() *garmin.Session
}

var _ Provider = (*garmin.Client)(nil)

// metricFetch binds a DailyRecord field name to its provider call. Each
// field is fetched, sanitized and written independently, so one failing
// metric never blocks its siblings for the same date.
type metricFetch struct {
	field string
	fn    func(context.Context, Provider, string) (map[string]any, error)
}

var dailyMetrics = []metricFetch{
	{"stats", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetStats(ctx, d) }},
	{"heartRates", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetHeartRates(ctx, d) }},
	{"sleep", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetSleep(ctx, d) }},
	{"stress", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetStress(ctx, d) }},
	{"bodyComp", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetBodyComposition(ctx, d) }},
	{"hrv", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetHRV(ctx, d) }},
	{"spo2", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetSpO2(ctx, d) }},
	{"respiration", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetRespiration(ctx, d) }},
	{"trainingReadiness", func(ctx context.Context, p Provider, d string) (map[string]any, error) { return p.GetTrainingReadiness(ctx, d) }},
}
