package scheduledsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/garmin"
	"github.com/vitalsync/server/pkg/syncer"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.CloudEvent("ScheduledSync", ScheduledSync)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

// ScheduledSync is the CloudEvent entry point, fired by the scheduler
// topic every 15 minutes.
func ScheduledSync(ctx context.Context, e cloudevents.Event) error {
	svc, err := initService(ctx)
	if err != nil {
		return fmt.Errorf("service init failed: %w", err)
	}
	return framework.WrapCloudEvent("scheduled-sync", svc, scheduledHandler)(ctx, e)
}

// scheduledHandler pulls the current day for every connected user.
// Per-user failures are logged and skipped; one bad session never stalls
// the fleet.
func scheduledHandler(ctx context.Context, e cloudevents.Event, fwCtx *framework.Context) (interface{}, error) {
	svc := fwCtx.Service

	sm := &syncer.SessionManager{
		DB:     svc.DB,
		Vault:  svc.Vault,
		Logger: fwCtx.Logger,
		Dial:   func(s *garmin.Session) syncer.Provider { return garmin.NewClient(s) },
	}
	orch := &syncer.Orchestrator{DB: svc.DB, Logger: fwCtx.Logger}

	synced, failed := orch.SyncAll(ctx, sm)
	fwCtx.Logger.Info("Scheduled sync finished", "synced", synced, "failed", failed)

	return map[string]int{"synced": synced, "failed": failed}, nil
}
