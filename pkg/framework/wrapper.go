// Package framework wraps function entry points with the cross-cutting
// concerns every invocation shares: caller authentication, structured
// logging, execution audit records, and Sentry capture.
package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/infrastructure/sentry"
)

// Context contains dependencies injected by the framework.
type Context struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
	// UserID is the verified caller identity for HTTP callables; empty
	// for system-privileged triggers.
	UserID string
}

// HTTPHandlerFunc is the signature for a callable HTTP function.
type HTTPHandlerFunc func(ctx context.Context, r *http.Request, fwCtx *Context) (interface{}, error)

// CloudEventHandlerFunc is the signature for an event-triggered function.
type CloudEventHandlerFunc func(ctx context.Context, e event.Event, fwCtx *Context) (interface{}, error)

type errorResponse struct {
	Error string `json:"error"`
}

// WrapHTTP wraps a callable handler with method checking, Firebase
// ID-token verification, execution logging and error mapping.
func WrapHTTP(serviceName string, svc *bootstrap.Service, handler HTTPHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(errorResponse{Error: "method not allowed"})
			return
		}

		logger := bootstrap.NewLogger(serviceName)

		uid, err := verifyCaller(ctx, svc, r)
		if err != nil {
			logger.Warn("Unauthenticated request rejected", "error", err)
			w.WriteHeader(apierrors.HTTPStatus(apierrors.ErrUnauthenticated))
			json.NewEncoder(w).Encode(errorResponse{Error: apierrors.ErrUnauthenticated.Error()})
			return
		}
		logger = logger.With("user_id", uid)

		execID, startErr := logStart(ctx, svc.DB, serviceName, uid, "http")
		if startErr != nil {
			logger.Error("Failed to log execution start", "error", startErr)
			// Continue anyway - don't fail the function just because logging failed
		}
		logger = logger.With("execution_id", execID)
		logger.Info("Function started")

		fwCtx := &Context{Service: svc, Logger: logger, ExecutionID: execID, UserID: uid}
		outputs, handlerErr := handler(ctx, r, fwCtx)

		// No start record means no document to finish.
		if startErr == nil {
			if logErr := logFinish(ctx, svc.DB, execID, handlerErr); logErr != nil {
				logger.Warn("Failed to log execution result", "error", logErr)
			}
		}

		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			status := apierrors.HTTPStatus(handlerErr)
			if status >= http.StatusInternalServerError {
				sentry.CaptureException(handlerErr, map[string]string{"service": serviceName, "user_id": uid}, logger)
				sentry.Flush(2 * time.Second)
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(errorResponse{Error: handlerErr.Error()})
			return
		}

		logger.Info("Function completed successfully")
		json.NewEncoder(w).Encode(outputs)
	}
}

// WrapCloudEvent wraps an event-triggered handler. These run with system
// privilege: there is no caller identity to verify.
func WrapCloudEvent(serviceName string, svc *bootstrap.Service, handler CloudEventHandlerFunc) func(context.Context, event.Event) error {
	return func(ctx context.Context, e event.Event) error {
		logger := bootstrap.NewLogger(serviceName)

		execID, startErr := logStart(ctx, svc.DB, serviceName, "", "pubsub")
		if startErr != nil {
			logger.Error("Failed to log execution start", "error", startErr)
		}
		logger = logger.With("execution_id", execID)
		logger.Info("Function started")

		fwCtx := &Context{Service: svc, Logger: logger, ExecutionID: execID}
		_, handlerErr := handler(ctx, e, fwCtx)

		if startErr == nil {
			if logErr := logFinish(ctx, svc.DB, execID, handlerErr); logErr != nil {
				logger.Warn("Failed to log execution result", "error", logErr)
			}
		}

		if handlerErr != nil {
			logger.Error("Function failed", "error", handlerErr)
			sentry.CaptureException(handlerErr, map[string]string{"service": serviceName}, logger)
			sentry.Flush(2 * time.Second)
			return handlerErr
		}

		logger.Info("Function completed successfully")
		return nil
	}
}

// verifyCaller extracts and verifies the Firebase ID token on the
// Authorization header, returning the caller's UID.
func verifyCaller(ctx context.Context, svc *bootstrap.Service, r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", apierrors.ErrUnauthenticated
	}
	idToken := strings.TrimPrefix(header, "Bearer ")

	token, err := svc.Auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", apierrors.ErrUnauthenticated
	}
	return token.UID, nil
}
