package garmindisconnect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("GarminDisconnect", GarminDisconnect)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type disconnectResponse struct {
	Status string `json:"status"`
}

// GarminDisconnect is the HTTP entry point.
func GarminDisconnect(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("garmin-disconnect", svc, disconnectHandler)(w, r)
}

// disconnectHandler removes the stored credentials but keeps synced
// history; reconnecting later resumes where the data left off.
func disconnectHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	svc := fwCtx.Service

	if err := svc.DB.UpdateGarminConfig(ctx, fwCtx.UserID, map[string]any{
		"connected":      false,
		"garthSession":   shared.DeleteField,
		"garminEmail":    shared.DeleteField,
		"disconnectedAt": shared.ServerTimestamp,
	}); err != nil {
		return nil, fmt.Errorf("clear garmin config: %w", err)
	}

	if err := svc.DB.AddAuditEvent(ctx, "garmin_disconnected"); err != nil {
		fwCtx.Logger.Warn("Failed to write audit event", "error", err)
	}

	return disconnectResponse{Status: "disconnected"}, nil
}
