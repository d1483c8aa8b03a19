// Package sanitize bounds and type-normalizes arbitrary provider
// payloads so they satisfy the document store's constraints on size,
// depth and value types.
package sanitize

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	// MaxDepth is the default nesting ceiling; substructures below it are
	// replaced with a lossy string form.
	MaxDepth = 10

	// MaxSequenceLen caps stored sequences. Raw high-frequency time
	// series are not stored verbatim; longer lists become a count
	// placeholder.
	MaxSequenceLen = 100

	// MaxLossyLen caps lossy string representations.
	MaxLossyLen = 200

	// MaxStringLen caps strings decoded from byte payloads.
	MaxStringLen = 500
)

// Value normalizes v for storage:
//   - over-depth substructures become a lossy string capped at MaxLossyLen
//   - sequences longer than MaxSequenceLen become a count placeholder
//   - NaN and ±Inf become nil (the store cannot represent them)
//   - byte slices and time values become strings
func Value(v any, maxDepth int) any {
	return walk(v, maxDepth)
}

func walk(v any, depth int) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string, int, int32, int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return walk(float64(x), depth)
	case []byte:
		return Truncate(string(x), MaxStringLen)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case map[string]any:
		if depth <= 0 {
			return Lossy(x)
		}
		out := make(map[string]any, len(x))
		for k, elem := range x {
			out[k] = walk(elem, depth-1)
		}
		return out
	case []any:
		if len(x) > MaxSequenceLen {
			return fmt.Sprintf("[%d items truncated]", len(x))
		}
		if depth <= 0 {
			return Lossy(x)
		}
		out := make([]any, len(x))
		for i, elem := range x {
			out[i] = walk(elem, depth-1)
		}
		return out
	default:
		// Opaque type the store has no mapping for.
		return Lossy(x)
	}
}

// Lossy renders v as a capped string. Used for over-depth substructures
// and as the last-resort fallback when the store still rejects a
// sanitized payload.
func Lossy(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return Truncate(fmt.Sprintf("%v", v), MaxLossyLen)
	}
	return Truncate(string(b), MaxLossyLen)
}

// Fields sanitizes every value of a field map independently.
func Fields(fields map[string]any, maxDepth int) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = Value(v, maxDepth)
	}
	return out
}

// Truncate caps s at maxLen bytes.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
