package sanitize

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestSequenceCapping(t *testing.T) {
	long := make([]any, 150)
	for i := range long {
		long[i] = i
	}
	got := Value(long, MaxDepth)
	s, ok := got.(string)
	if !ok {
		t.Fatalf("expected placeholder string, got %T", got)
	}
	if !strings.Contains(s, "150") {
		t.Errorf("placeholder should name the dropped length: %q", s)
	}
}

func TestSequenceAtLimitKept(t *testing.T) {
	seq := make([]any, 100)
	for i := range seq {
		seq[i] = float64(i)
	}
	got, ok := Value(seq, MaxDepth).([]any)
	if !ok {
		t.Fatal("sequence of 100 must be returned as a sequence")
	}
	if len(got) != 100 {
		t.Errorf("length changed: %d", len(got))
	}
}

func TestNonFiniteNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"NaN", math.NaN()},
		{"+Inf", math.Inf(1)},
		{"-Inf", math.Inf(-1)},
		{"float32 NaN", float32(math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Value(tt.in, MaxDepth); got != nil {
				t.Errorf("Value(%v) = %v, want nil", tt.in, got)
			}
		})
	}
}

func TestByteStrings(t *testing.T) {
	got := Value([]byte("hello"), MaxDepth)
	if got != "hello" {
		t.Errorf("bytes should become string, got %v", got)
	}

	big := []byte(strings.Repeat("x", 600))
	s := Value(big, MaxDepth).(string)
	if len(s) != MaxStringLen {
		t.Errorf("byte string must be truncated to %d, got %d", MaxStringLen, len(s))
	}
}

func TestTimeValues(t *testing.T) {
	ts := time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
	if got := Value(ts, MaxDepth); got != "2024-03-01T06:30:00Z" {
		t.Errorf("time should become RFC3339 string, got %v", got)
	}
}

func TestDepthLimit(t *testing.T) {
	// Build nesting deeper than the limit.
	v := map[string]any{"leaf": 1.0}
	for i := 0; i < 15; i++ {
		v = map[string]any{"nested": v}
	}

	got := Value(v, 5).(map[string]any)
	// Walk down 5 levels; the next one must be a lossy string.
	cur := any(got)
	for i := 0; i < 5; i++ {
		m, ok := cur.(map[string]any)
		if !ok {
			t.Fatalf("level %d collapsed too early: %T", i, cur)
		}
		cur = m["nested"]
	}
	s, ok := cur.(string)
	if !ok {
		t.Fatalf("over-depth substructure should be a string, got %T", cur)
	}
	if len(s) > MaxLossyLen {
		t.Errorf("lossy string exceeds cap: %d", len(s))
	}
}

func TestNestedMixedPayload(t *testing.T) {
	in := map[string]any{
		"calendarDate": "2024-01-15",
		"restingHR":    52.0,
		"badValue":     math.NaN(),
		"series":       make([]any, 200),
		"nested": map[string]any{
			"raw": []byte("abc"),
		},
	}
	got := Fields(in, MaxDepth)

	if got["calendarDate"] != "2024-01-15" {
		t.Error("scalar string changed")
	}
	if got["badValue"] != nil {
		t.Error("NaN survived")
	}
	if _, ok := got["series"].(string); !ok {
		t.Error("long series not collapsed")
	}
	if got["nested"].(map[string]any)["raw"] != "abc" {
		t.Error("nested bytes not normalized")
	}
}

func TestLossyFallsBackOnUnmarshalable(t *testing.T) {
	// json.Marshal cannot encode a channel; Lossy must still return a
	// bounded string.
	s := Lossy(make(chan int))
	if s == "" || len(s) > MaxLossyLen {
		t.Errorf("unexpected lossy form: %q", s)
	}
}

func TestOpaqueTypeBecomesString(t *testing.T) {
	type odd struct{ A int }
	got := Value(odd{A: 7}, MaxDepth)
	if _, ok := got.(string); !ok {
		t.Errorf("opaque struct should become lossy string, got %T", got)
	}
}

func TestLossyCapped(t *testing.T) {
	huge := map[string]any{"k": strings.Repeat("v", 1000)}
	if s := Lossy(huge); len(s) > MaxLossyLen {
		t.Errorf("lossy output over cap: %d", len(s))
	}
}
