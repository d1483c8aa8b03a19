package activitystats

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/syncer"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("ActivityStats", ActivityStats)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type statsResponse struct {
	Status string `json:"status"`
}

// ActivityStats is the HTTP entry point.
func ActivityStats(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("activity-stats", svc, statsHandler)(w, r)
}

// statsHandler rebuilds all rollup documents for the caller from the
// stored activity log. No provider session is needed.
func statsHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	agg := &syncer.Aggregator{DB: fwCtx.Service.DB, Logger: fwCtx.Logger}
	if err := agg.RecomputeAll(ctx, fwCtx.UserID); err != nil {
		return nil, err
	}
	return statsResponse{Status: "ok"}, nil
}
