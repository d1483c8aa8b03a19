package garminbackfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/garmin"
	infrapubsub "github.com/vitalsync/server/pkg/infrastructure/pubsub"
	"github.com/vitalsync/server/pkg/syncer"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("GarminBackfill", GarminBackfill)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

// GarminBackfill is the HTTP entry point.
func GarminBackfill(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("garmin-backfill", svc, backfillHandler)(w, r)
}

// backfillHandler runs one bounded backfill chunk. The session is
// re-persisted whether or not the run succeeded: the provider may have
// rotated tokens before the failure.
func backfillHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	var req syncer.BackfillRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("%w: invalid request body", apierrors.ErrInvalidArgument)
		}
	}

	svc := fwCtx.Service
	sm := &syncer.SessionManager{
		DB:     svc.DB,
		Vault:  svc.Vault,
		Logger: fwCtx.Logger,
		Dial:   func(s *garmin.Session) syncer.Provider { return garmin.NewClient(s) },
	}
	p, err := sm.Restore(ctx, fwCtx.UserID)
	if err != nil {
		return nil, err
	}

	controller := &syncer.BackfillController{
		DB:     svc.DB,
		Stats:  &syncer.Aggregator{DB: svc.DB, Logger: fwCtx.Logger},
		Notify: svc.Notify,
		Logger: fwCtx.Logger,
	}
	res, runErr := controller.Run(ctx, fwCtx.UserID, p, req)

	if err := sm.Persist(ctx, fwCtx.UserID, p); err != nil {
		fwCtx.Logger.Warn("Failed to persist session after backfill", "error", err)
	}
	if runErr != nil {
		return nil, runErr
	}

	if !res.HasMore {
		publishCompleted(ctx, fwCtx)
	}
	return res, nil
}

func publishCompleted(ctx context.Context, fwCtx *framework.Context) {
	e, err := infrapubsub.NewCloudEvent(infrapubsub.EventSourceSync, infrapubsub.EventTypeBackfillCompleted, infrapubsub.SyncCompleted{
		UserID:   fwCtx.UserID,
		Mode:     "backfill",
		SyncedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		fwCtx.Logger.Warn("Failed to build completion event", "error", err)
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		fwCtx.Logger.Warn("Failed to encode completion event", "error", err)
		return
	}
	if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicBackfillCompleted, data); err != nil {
		fwCtx.Logger.Warn("Failed to publish completion event", "error", err)
	}
}
