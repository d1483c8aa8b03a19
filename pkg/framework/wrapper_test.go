package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/testing/mocks"
	"github.com/vitalsync/server/pkg/types"
)

func TestWrapCloudEventLogsExecutionLifecycle(t *testing.T) {
	var started *types.ExecutionRecord
	var finished map[string]any
	db := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			started = record
			return nil
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, fields map[string]any) error {
			require.NotNil(t, started)
			assert.Equal(t, started.ExecutionID, id)
			finished = fields
			return nil
		},
	}
	svc := &bootstrap.Service{DB: db}

	fn := WrapCloudEvent("test-service", svc, func(ctx context.Context, e event.Event, fwCtx *Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, fn(context.Background(), event.New()))

	require.NotNil(t, started)
	assert.Equal(t, types.StatusStarted, started.Status)
	require.NotNil(t, finished)
	assert.Equal(t, types.StatusSuccess, finished["status"])
}

func TestWrapCloudEventRecordsHandlerFailure(t *testing.T) {
	var finished map[string]any
	db := &mocks.MockDatabase{
		UpdateExecutionFunc: func(ctx context.Context, id string, fields map[string]any) error {
			finished = fields
			return nil
		},
	}
	svc := &bootstrap.Service{DB: db}

	cause := errors.New("handler blew up")
	fn := WrapCloudEvent("test-service", svc, func(ctx context.Context, e event.Event, fwCtx *Context) (interface{}, error) {
		return nil, cause
	})
	assert.ErrorIs(t, fn(context.Background(), event.New()), cause)

	require.NotNil(t, finished)
	assert.Equal(t, types.StatusFailure, finished["status"])
	assert.Equal(t, cause.Error(), finished["error"])
}

func TestWrapCloudEventSkipsFinishWhenStartNeverRecorded(t *testing.T) {
	// If the start record was never written there is nothing to finish;
	// the update would target a document that does not exist.
	db := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			return errors.New("firestore unavailable")
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, fields map[string]any) error {
			t.Fatal("finish write issued without a start record")
			return nil
		},
	}
	svc := &bootstrap.Service{DB: db}

	handled := false
	fn := WrapCloudEvent("test-service", svc, func(ctx context.Context, e event.Event, fwCtx *Context) (interface{}, error) {
		handled = true
		return nil, nil
	})
	require.NoError(t, fn(context.Background(), event.New()))
	assert.True(t, handled)
}
