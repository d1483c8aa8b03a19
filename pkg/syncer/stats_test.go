package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/server/pkg/testing/mocks"
)

// fixedNow is 2024-07-10, a Wednesday; its Monday-start week begins
// 2024-07-08.
var testActivities = []map[string]any{
	{
		"activityId":     float64(1),
		"startTimeLocal": "2024-07-09T06:00:00",
		"activityType":   map[string]any{"typeKey": "running"},
		"duration":       1800.0,
		"distance":       5000.0,
		"calories":       300.0,
	},
	{
		"activityId":      float64(2),
		"startTimeLocal":  "2024-07-10T07:00:00",
		"activityType":    map[string]any{"typeKey": "cycling"},
		"elapsedDuration": 3600.0,
		"distance":        20000.0,
		"calories":        500.0,
	},
	{
		// GMT fallback, no type descriptor.
		"activityId":   float64(3),
		"startTimeGMT": "2023-12-31 23:00:00",
		"duration":     600.0,
	},
}

func streamFixedActivities(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error {
	for _, act := range testActivities {
		if err := fn(activityID(act), act); err != nil {
			return err
		}
	}
	return nil
}

func newTestAggregator() (*Aggregator, *mocks.MockDatabase) {
	db := &mocks.MockDatabase{StreamActivitiesFunc: streamFixedActivities}
	return &Aggregator{DB: db, Logger: testLogger(), Now: fixedNow}, db
}

func TestRecomputeAllRollupFamilies(t *testing.T) {
	a, db := newTestAggregator()
	require.NoError(t, a.RecomputeAll(context.Background(), "user-1"))

	// 52 weeks, 24 months, and two years (2023 from the log, 2024 current).
	assert.Len(t, db.Batch.Writes, trailingWeeks+trailingMonths+2)
	assert.Equal(t, 1, db.Batch.FlushCount)
}

func TestRecomputeWeekRollup(t *testing.T) {
	a, db := newTestAggregator()
	require.NoError(t, a.RecomputeAll(context.Background(), "user-1"))

	writes := db.Batch.WritesFor("users/user-1/activityStats/week_2024-07-08")
	require.Len(t, writes, 1)
	f := writes[0].Fields
	assert.Equal(t, "week", f["periodType"])
	assert.Equal(t, "2024-07-08", f["periodStart"])
	assert.Equal(t, "2024-07-14", f["periodEnd"])
	assert.Equal(t, 2, f["activityCount"])
	// Duration falls back to elapsedDuration for the cycling activity.
	assert.Equal(t, 5400.0, f["totalDurationSeconds"])
	assert.Equal(t, 25000.0, f["totalDistanceMeters"])
	assert.Equal(t, 800.0, f["totalCalories"])
	assert.Contains(t, f, "computedAt")

	byType, ok := f["byType"].(map[string]any)
	require.True(t, ok)
	running, ok := byType["running"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, running["count"])
	assert.Equal(t, 1800.0, running["duration"])
	cycling, ok := byType["cycling"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3600.0, cycling["duration"])
}

func TestRecomputeMonthRollups(t *testing.T) {
	a, db := newTestAggregator()
	require.NoError(t, a.RecomputeAll(context.Background(), "user-1"))

	july := db.Batch.WritesFor("users/user-1/activityStats/month_2024-07-01")
	require.Len(t, july, 1)
	assert.Equal(t, 2, july[0].Fields["activityCount"])
	assert.Equal(t, "2024-07-01", july[0].Fields["periodStart"])
	assert.Equal(t, "2024-07-31", july[0].Fields["periodEnd"])

	// 24 trailing months from 2024-07 reach back across the year boundary.
	assert.Len(t, db.Batch.WritesFor("users/user-1/activityStats/month_2022-08-01"), 1)
	assert.Empty(t, db.Batch.WritesFor("users/user-1/activityStats/month_2022-07-01"))
}

func TestRecomputeYearRollups(t *testing.T) {
	a, db := newTestAggregator()
	require.NoError(t, a.RecomputeAll(context.Background(), "user-1"))

	y2023 := db.Batch.WritesFor("users/user-1/activityStats/year_2023")
	require.Len(t, y2023, 1)
	assert.Equal(t, 1, y2023[0].Fields["activityCount"])
	assert.Equal(t, 600.0, y2023[0].Fields["totalDurationSeconds"])

	byType, ok := y2023[0].Fields["byType"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, byType, "other")

	y2024 := db.Batch.WritesFor("users/user-1/activityStats/year_2024")
	require.Len(t, y2024, 1)
	assert.Equal(t, 2, y2024[0].Fields["activityCount"])
}

func TestRecomputeCurrentYearAlwaysPresent(t *testing.T) {
	db := &mocks.MockDatabase{} // empty activity log
	a := &Aggregator{DB: db, Logger: testLogger(), Now: fixedNow}
	require.NoError(t, a.RecomputeAll(context.Background(), "user-1"))

	writes := db.Batch.WritesFor("users/user-1/activityStats/year_2024")
	require.Len(t, writes, 1)
	assert.Equal(t, 0, writes[0].Fields["activityCount"])
}

func TestRecomputeIsIdempotent(t *testing.T) {
	a1, db1 := newTestAggregator()
	require.NoError(t, a1.RecomputeAll(context.Background(), "user-1"))

	a2, db2 := newTestAggregator()
	require.NoError(t, a2.RecomputeAll(context.Background(), "user-1"))

	byPath := func(db *mocks.MockDatabase) map[string]map[string]any {
		out := map[string]map[string]any{}
		for _, w := range db.Batch.Writes {
			out[w.Path] = w.Fields
		}
		return out
	}
	assert.Equal(t, byPath(db1), byPath(db2))
}
