// Package apierrors defines the error taxonomy shared by the callable
// functions and the sync core, plus the HTTP status mapping used at the
// function boundary.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated: no verified caller identity on the request.
	ErrUnauthenticated = errors.New("must be signed in")

	// ErrInvalidArgument: missing or malformed request fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotConnected: the user has no active Garmin connection. Distinct
	// from other failures so callers can prompt re-authentication instead
	// of retrying.
	ErrNotConnected = errors.New("garmin not connected")

	// ErrSessionExpired: a session is present but undecryptable or was
	// rejected upstream; the user must log in again.
	ErrSessionExpired = errors.New("garmin session expired")

	// ErrDecryption: ciphertext failed authentication (tampered data,
	// wrong key, or corrupted storage).
	ErrDecryption = errors.New("decryption failed")

	// ErrMalformedAIResponse: completion text was not parseable as the
	// expected JSON shape. Callers should retry; the response is never
	// guessed at.
	ErrMalformedAIResponse = errors.New("malformed AI response")

	// ErrMFARequired: the provider account has multi-factor
	// authentication enabled, which the headless login flow cannot
	// complete.
	ErrMFARequired = errors.New("garmin account requires MFA")
)

// ProviderError wraps a failed call to the wearable-data provider.
// Inside bulk loops these are absorbed per field; during login
// verification they are fatal.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("garmin %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus maps a taxonomy error to the status code the callable
// surface returns for it.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrMFARequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMalformedAIResponse):
		return http.StatusInternalServerError
	default:
		var pe *ProviderError
		if errors.As(err, &pe) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
