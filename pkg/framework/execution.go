package framework

import (
	"context"
	"time"

	"github.com/google/uuid"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/types"
)

// logStart writes the STARTED execution record and returns its ID.
func logStart(ctx context.Context, db shared.Database, serviceName, userID, triggerType string) (string, error) {
	id := uuid.NewString()
	record := &types.ExecutionRecord{
		ExecutionID: id,
		Service:     serviceName,
		UserID:      userID,
		TriggerType: triggerType,
		Status:      types.StatusStarted,
		StartedAt:   time.Now().UTC(),
	}
	return id, db.SetExecution(ctx, record)
}

// logFinish closes out an execution record with its final status.
func logFinish(ctx context.Context, db shared.Database, id string, handlerErr error) error {
	fields := map[string]any{
		"status":     types.StatusSuccess,
		"finishedAt": shared.ServerTimestamp,
	}
	if handlerErr != nil {
		fields["status"] = types.StatusFailure
		fields["error"] = handlerErr.Error()
	}
	return db.UpdateExecution(ctx, id, fields)
}
