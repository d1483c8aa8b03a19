package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/server/pkg/testing/mocks"
	"github.com/vitalsync/server/pkg/types"
)

func newBackfillController(db *mocks.MockDatabase, notify *mocks.MockNotifier) *BackfillController {
	c := &BackfillController{
		DB:     db,
		Stats:  &Aggregator{DB: db, Logger: testLogger(), Now: fixedNow},
		Logger: testLogger(),
		Now:    fixedNow,
	}
	// Assign only when non-nil so a nil *MockNotifier doesn't become a
	// non-nil interface value.
	if notify != nil {
		c.Notify = notify
	}
	return c
}

func intPtr(i int) *int { return &i }

func TestBackfillDayWindowChunks(t *testing.T) {
	db := &mocks.MockDatabase{}
	c := newBackfillController(db, nil)
	ctx := context.Background()
	provider := &mocks.MockProvider{}

	res, err := c.Run(ctx, "user-1", provider, BackfillRequest{DaysBack: 200})
	require.NoError(t, err)
	assert.Equal(t, 60, res.DaysProcessed)
	assert.True(t, res.HasMore)
	require.NotNil(t, res.NextOffset)
	assert.Equal(t, 60, *res.NextOffset)
	assert.Equal(t, 30, res.Progress)
	assert.Nil(t, res.NextPage)

	// One merge-write per metric per day.
	assert.Len(t, db.Batch.Writes, 60*len(dailyMetrics))

	res, err = c.Run(ctx, "user-1", provider, BackfillRequest{DaysBack: 200, StartOffset: 60})
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	assert.Equal(t, 120, *res.NextOffset)
	assert.Equal(t, 60, res.Progress)

	res, err = c.Run(ctx, "user-1", provider, BackfillRequest{DaysBack: 200, StartOffset: 180})
	require.NoError(t, err)
	assert.Equal(t, 20, res.DaysProcessed)
	assert.False(t, res.HasMore)
	assert.Nil(t, res.NextOffset)
	assert.Equal(t, 100, res.Progress)

	final := db.ConfigUpdates[len(db.ConfigUpdates)-1]
	assert.Equal(t, types.BackfillComplete, final["backfillStatus"])
	assert.Equal(t, 100, final["backfillProgress"])
}

func TestBackfillDayWindowProgressClampedBeforeCompletion(t *testing.T) {
	db := &mocks.MockDatabase{}
	c := newBackfillController(db, nil)

	// 60 of 62 days is 97% rounded, but incomplete runs never report
	// more than 95.
	res, err := c.Run(context.Background(), "user-1", &mocks.MockProvider{}, BackfillRequest{DaysBack: 62})
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	assert.Equal(t, 95, res.Progress)
}

func TestBackfillDayWindowStampsSource(t *testing.T) {
	db := &mocks.MockDatabase{}
	c := newBackfillController(db, nil)

	_, err := c.Run(context.Background(), "user-1", &mocks.MockProvider{}, BackfillRequest{DaysBack: 60})
	require.NoError(t, err)

	require.NotEmpty(t, db.Batch.Writes)
	for _, w := range db.Batch.Writes {
		assert.Equal(t, types.SourceBackfill, w.Fields["source"])
	}
}

func TestBackfillDayWindowCommitFailureKeepsCursor(t *testing.T) {
	// Flush and both per-document retries fail: the invocation errors
	// out and no progress is recorded, so the caller retries the same
	// offset instead of skipping uncommitted days.
	db := &mocks.MockDatabase{Batch: &mocks.MockBatch{
		CommitErrs: []error{
			errors.New("unavailable"),
			errors.New("unavailable"),
			errors.New("unavailable"),
		},
	}}
	c := newBackfillController(db, nil)

	_, err := c.Run(context.Background(), "user-1", &mocks.MockProvider{}, BackfillRequest{DaysBack: 30})
	require.Error(t, err)
	assert.Empty(t, db.Batch.Writes)
	assert.Empty(t, db.ConfigUpdates)
}

func TestBackfillPageModeEndsOnShortPage(t *testing.T) {
	streamCalls := 0
	db := &mocks.MockDatabase{
		StreamActivitiesFunc: func(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error {
			streamCalls++
			return nil
		},
	}
	notify := &mocks.MockNotifier{}
	c := newBackfillController(db, notify)

	// Three pages: 100, 100, 37. The short page marks the end of data.
	pageSizes := []int{100, 100, 37}
	provider := &mocks.MockProvider{
		ListActivitiesFunc: func(ctx context.Context, start, limit int) ([]map[string]any, error) {
			page := start / ActivityPageSize
			require.Less(t, page, len(pageSizes))
			assert.Equal(t, ActivityPageSize, limit)
			out := make([]map[string]any, pageSizes[page])
			for i := range out {
				out[i] = map[string]any{"activityId": float64(start + i), "startTimeLocal": "2024-07-01T08:00:00"}
			}
			return out, nil
		},
	}

	res, err := c.Run(context.Background(), "user-1", provider, BackfillRequest{StartPage: intPtr(0)})
	require.NoError(t, err)
	assert.False(t, res.HasMore)
	assert.Nil(t, res.NextPage)
	assert.Equal(t, 237, res.TotalActivities)

	// Completion triggers exactly one stats recompute and a push.
	assert.Equal(t, 1, streamCalls)
	assert.Equal(t, []string{"user-1"}, notify.Sent)

	final := db.ConfigUpdates[len(db.ConfigUpdates)-1]
	assert.Equal(t, types.BackfillComplete, final["backfillStatus"])
}

func TestBackfillPageModeRespectsPageBudget(t *testing.T) {
	streamCalls := 0
	db := &mocks.MockDatabase{
		StreamActivitiesFunc: func(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error {
			streamCalls++
			return nil
		},
	}
	notify := &mocks.MockNotifier{}
	c := newBackfillController(db, notify)

	provider := &mocks.MockProvider{
		ListActivitiesFunc: func(ctx context.Context, start, limit int) ([]map[string]any, error) {
			out := make([]map[string]any, limit)
			for i := range out {
				out[i] = map[string]any{"activityId": float64(start + i)}
			}
			return out, nil
		},
	}

	res, err := c.Run(context.Background(), "user-1", provider, BackfillRequest{StartPage: intPtr(3)})
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	require.NotNil(t, res.NextPage)
	assert.Equal(t, 3+MaxPagesPerRun, *res.NextPage)
	assert.Equal(t, MaxPagesPerRun*ActivityPageSize, res.TotalActivities)

	// No completion yet: no recompute, no push.
	assert.Equal(t, 0, streamCalls)
	assert.Empty(t, notify.Sent)
}

func TestBackfillPageModeSurfacesListError(t *testing.T) {
	db := &mocks.MockDatabase{}
	c := newBackfillController(db, &mocks.MockNotifier{})

	cause := errors.New("rate limited")
	provider := &mocks.MockProvider{
		ListActivitiesFunc: func(ctx context.Context, start, limit int) ([]map[string]any, error) {
			if start == ActivityPageSize {
				return nil, cause
			}
			out := make([]map[string]any, ActivityPageSize)
			for i := range out {
				out[i] = map[string]any{"activityId": fmt.Sprintf("%d", start+i)}
			}
			return out, nil
		},
	}

	_, err := c.Run(context.Background(), "user-1", provider, BackfillRequest{StartPage: intPtr(0)})
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, db.ConfigUpdates)
}

func TestBackfillRequestMode(t *testing.T) {
	assert.False(t, BackfillRequest{DaysBack: 365}.PageMode())
	assert.True(t, BackfillRequest{StartPage: intPtr(0)}.PageMode())
}
