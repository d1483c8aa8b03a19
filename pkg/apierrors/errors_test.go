package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"invalid argument", ErrInvalidArgument, http.StatusBadRequest},
		{"not connected", ErrNotConnected, http.StatusPreconditionFailed},
		{"session expired", ErrSessionExpired, http.StatusUnauthorized},
		{"mfa required", ErrMFARequired, http.StatusPreconditionFailed},
		{"malformed AI response", ErrMalformedAIResponse, http.StatusInternalServerError},
		{"provider error", &ProviderError{Op: "get_stats", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"wrapped not connected", fmt.Errorf("restore: %w", ErrNotConnected), http.StatusPreconditionFailed},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("429 too many requests")
	err := &ProviderError{Op: "get_sleep", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("ProviderError should unwrap to its inner error")
	}
	if err.Error() != "garmin get_sleep: 429 too many requests" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
