package garminlogin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/garmin"
	"github.com/vitalsync/server/pkg/syncer"
	"github.com/vitalsync/server/pkg/types"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("GarminLogin", GarminLogin)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status      string `json:"status"`
	DisplayName string `json:"displayName,omitempty"`
}

// GarminLogin is the HTTP entry point.
func GarminLogin(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("garmin-login", svc, loginHandler)(w, r)
}

// loginHandler authenticates with Garmin, verifies the session by a
// profile fetch, and stores the encrypted credential bundle. Provider
// failures here are fatal: a connection that cannot fetch a profile is
// not worth persisting.
func loginHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid request body", apierrors.ErrInvalidArgument)
	}
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", apierrors.ErrInvalidArgument)
	}

	svc := fwCtx.Service
	client, err := garmin.Login(ctx, req.Email, req.Password)
	if err != nil {
		if strings.Contains(err.Error(), "MFA") {
			return nil, apierrors.ErrMFARequired
		}
		return nil, &apierrors.ProviderError{Op: "login", Err: err}
	}

	displayName, err := client.FullName(ctx)
	if err != nil {
		return nil, &apierrors.ProviderError{Op: "verify_profile", Err: err}
	}
	client.SetDisplayName(displayName)

	sessionJSON, err := client.Session().Marshal()
	if err != nil {
		return nil, fmt.Errorf("serialize session: %w", err)
	}
	encryptedSession, err := svc.Vault.Encrypt(sessionJSON)
	if err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}
	encryptedEmail, err := svc.Vault.Encrypt(req.Email)
	if err != nil {
		return nil, fmt.Errorf("encrypt email: %w", err)
	}

	if err := svc.DB.UpdateGarminConfig(ctx, fwCtx.UserID, map[string]any{
		"connected":        true,
		"garthSession":     encryptedSession,
		"garminEmail":      encryptedEmail,
		"displayName":      displayName,
		"backfillStatus":   types.BackfillSyncing,
		"backfillProgress": 0,
		"connectedAt":      shared.ServerTimestamp,
	}); err != nil {
		return nil, fmt.Errorf("store garmin config: %w", err)
	}

	// Initial pull is best-effort: the connection is already established
	// and the scheduled sync will cover anything missed here.
	orch := &syncer.Orchestrator{DB: svc.DB, Logger: fwCtx.Logger}
	if err := orch.Sync(ctx, fwCtx.UserID, client, syncer.WindowInitial, types.SourcePull); err != nil {
		fwCtx.Logger.Warn("Initial sync failed after login", "error", err)
	}

	sm := &syncer.SessionManager{DB: svc.DB, Vault: svc.Vault, Logger: fwCtx.Logger}
	if err := sm.Persist(ctx, fwCtx.UserID, client); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if err := svc.DB.AddAuditEvent(ctx, "garmin_connected"); err != nil {
		fwCtx.Logger.Warn("Failed to write audit event", "error", err)
	}

	return loginResponse{Status: "connected", DisplayName: displayName}, nil
}
