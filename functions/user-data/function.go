package userdata

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
)

// deleteBatchSize bounds one round of subcollection deletion.
const deleteBatchSize = 100

// userCollections are the per-user subcollections covered by both the
// export and the delete.
var userCollections = []string{
	shared.CollectionSettings,
	shared.CollectionDailies,
	shared.CollectionActivities,
	shared.CollectionActivityStats,
	shared.CollectionInsights,
}

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("UserData", UserData)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type userDataRequest struct {
	Action string `json:"action"` // delete | export
}

type userDataResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// UserData is the HTTP entry point.
func UserData(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("user-data", svc, userDataHandler)(w, r)
}

func userDataHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	var req userDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid request body", apierrors.ErrInvalidArgument)
	}

	switch req.Action {
	case "delete":
		return deleteUserData(ctx, fwCtx)
	case "export":
		return exportUserData(ctx, fwCtx)
	default:
		return nil, fmt.Errorf("%w: action must be delete or export", apierrors.ErrInvalidArgument)
	}
}

// deleteUserData removes every stored record for the caller and the auth
// account itself. The audit record is anonymised: it must outlive the
// user it describes.
func deleteUserData(ctx context.Context, fwCtx *framework.Context) (interface{}, error) {
	svc := fwCtx.Service
	userID := fwCtx.UserID

	for _, coll := range userCollections {
		path := fmt.Sprintf("%s/%s/%s", shared.CollectionUsers, userID, coll)
		if err := svc.DB.DeleteCollection(ctx, path, deleteBatchSize); err != nil {
			return nil, fmt.Errorf("delete %s: %w", coll, err)
		}
	}

	if err := svc.Auth.DeleteUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("delete auth user: %w", err)
	}

	if err := svc.DB.AddAuditEvent(ctx, "user_data_deleted"); err != nil {
		fwCtx.Logger.Warn("Failed to write audit event", "error", err)
	}

	fwCtx.Logger.Info("User data deleted")
	return userDataResponse{Status: "deleted"}, nil
}

// exportUserData writes every stored record for the caller into a single
// JSON object in the export bucket and returns its path.
func exportUserData(ctx context.Context, fwCtx *framework.Context) (interface{}, error) {
	svc := fwCtx.Service
	userID := fwCtx.UserID
	if svc.Config.ExportBucket == "" {
		return nil, fmt.Errorf("export unavailable: GCS_EXPORT_BUCKET not configured")
	}

	export := map[string]any{
		"userId":     userID,
		"exportedAt": time.Now().UTC().Format(time.RFC3339),
	}
	for _, coll := range userCollections {
		path := fmt.Sprintf("%s/%s/%s", shared.CollectionUsers, userID, coll)
		docs, err := svc.DB.ReadCollection(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", coll, err)
		}
		export[coll] = docs
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	object := fmt.Sprintf("exports/%s/%s.json", userID, time.Now().UTC().Format("2006-01-02T15-04-05"))
	if err := svc.Blobs.Write(ctx, svc.Config.ExportBucket, object, data); err != nil {
		return nil, fmt.Errorf("write export object: %w", err)
	}

	if err := svc.DB.AddAuditEvent(ctx, "user_data_exported"); err != nil {
		fwCtx.Logger.Warn("Failed to write audit event", "error", err)
	}

	return userDataResponse{Status: "exported", Path: fmt.Sprintf("gs://%s/%s", svc.Config.ExportBucket, object)}, nil
}
