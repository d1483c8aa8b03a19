package syncer

import (
	"log/slog"

	"github.com/vitalsync/server/pkg/apierrors"
)

// Result is the outcome of a single provider read. The external API is
// third-party and rate-limited; a transient failure on one metric must
// not abort the whole day's sync, so the orchestrating loop substitutes
// a default at the call site rather than propagating. No retry happens
// here — the next scheduled run is the retry boundary.
type Result[T any] struct {
	Op    string
	Value T
	Err   error
}

// Fetch runs one provider read and captures its outcome.
func Fetch[T any](op string, fn func() (T, error)) Result[T] {
	v, err := fn()
	if err != nil {
		return Result[T]{Op: op, Err: &apierrors.ProviderError{Op: op, Err: err}}
	}
	return Result[T]{Op: op, Value: v}
}

// OK reports whether the read succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// OrDefault returns the fetched value, or def after logging the failure.
func (r Result[T]) OrDefault(logger *slog.Logger, def T) T {
	if r.Err != nil {
		logger.Warn("Provider read failed, using default", "op", r.Op, "error", r.Err)
		return def
	}
	return r.Value
}
