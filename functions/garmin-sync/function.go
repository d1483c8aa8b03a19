package garminsync

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
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/garmin"
	infrapubsub "github.com/vitalsync/server/pkg/infrastructure/pubsub"
	"github.com/vitalsync/server/pkg/syncer"
	"github.com/vitalsync/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("GarminSync", GarminSync)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type syncResponse struct {
	Status   string `json:"status"`
	SyncedAt string `json:"syncedAt"`
}

// GarminSync is the HTTP entry point.
func GarminSync(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("garmin-sync", svc, syncHandler)(w, r)
}

// syncHandler runs the on-demand pull: today plus yesterday, covering
// the provider's processing lag for late-arriving metrics.
func syncHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
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

	orch := &syncer.Orchestrator{DB: svc.DB, Logger: fwCtx.Logger}
	if err := orch.Sync(ctx, fwCtx.UserID, p, syncer.WindowOnDemand, types.SourcePull); err != nil {
		return nil, err
	}

	if err := sm.Persist(ctx, fwCtx.UserID, p); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	syncedAt := time.Now().UTC().Format(time.RFC3339)
	publishCompleted(ctx, fwCtx, "on_demand", syncedAt)

	return syncResponse{Status: "ok", SyncedAt: syncedAt}, nil
}

// publishCompleted emits the completion event for downstream consumers;
// failures are logged, never surfaced to the caller.
func publishCompleted(ctx context.Context, fwCtx *framework.Context, mode, syncedAt string) {
	e, err := infrapubsub.NewCloudEvent(infrapubsub.EventSourceSync, infrapubsub.EventTypeSyncCompleted, infrapubsub.SyncCompleted{
		UserID:   fwCtx.UserID,
		Mode:     mode,
		SyncedAt: syncedAt,
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
	if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicSyncCompleted, data); err != nil {
		fwCtx.Logger.Warn("Failed to publish completion event", "error", err)
	}
}
