package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNormalize_SameInstantAllRepresentations(t *testing.T) {
	want := time.Date(2026, 1, 15, 8, 30, 45, 0, time.UTC)

	representations := []struct {
		name string
		raw  string
	}{
		{name: "epoch seconds", raw: `1768465845`},
		{name: "epoch milliseconds", raw: `1768465845000`},
		{name: "iso-8601 utc", raw: `"2026-01-15T08:30:45Z"`},
		{name: "iso-8601 offset", raw: `"2026-01-15T10:30:45+02:00"`},
		{name: "iso-8601 with millis", raw: `"2026-01-15T08:30:45.000Z"`},
	}

	for _, tt := range representations {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.raw), &ts); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			got, err := ts.Normalize()
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !got.Equal(want) || got.Location() != time.UTC {
				t.Errorf("Normalize() = %v, want %v", got, want)
			}
		})
	}
}

func TestNormalize_MillisThresholdBoundary(t *testing.T) {
	tests := []struct {
		name     string
		value    int64
		expected time.Time
	}{
		{
			name:     "at threshold is seconds",
			value:    MillisThreshold,
			expected: time.Unix(MillisThreshold, 0).UTC(),
		},
		{
			name:     "one above threshold is milliseconds",
			value:    MillisThreshold + 1,
			expected: time.UnixMilli(MillisThreshold + 1).UTC(),
		},
		{
			name:     "zero is the epoch",
			value:    0,
			expected: time.Unix(0, 0).UTC(),
		},
		{
			name:     "typical seconds",
			value:    1_700_000_000,
			expected: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		},
		{
			name:     "typical milliseconds",
			value:    1_700_000_000_123,
			expected: time.Date(2023, 11, 14, 22, 13, 20, 123_000_000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromEpoch(tt.value).Normalize()
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("Normalize(%d) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name string
		ts   Timestamp
	}{
		{name: "unset", ts: Timestamp{}},
		{name: "garbage string", ts: FromString("yesterday-ish")},
		{name: "empty string", ts: FromString("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ts.Normalize()
			if !errors.Is(err, ErrUnparseableTimestamp) {
				t.Errorf("Normalize() error = %v, want ErrUnparseableTimestamp", err)
			}
		})
	}
}

func TestTimestamp_UnmarshalKinds(t *testing.T) {
	tests := []struct {
		raw  string
		kind Kind
	}{
		{raw: `1700000000`, kind: KindNumeric},
		{raw: `1.7e12`, kind: KindNumeric},
		{raw: `"2026-01-15T08:30:45Z"`, kind: KindString},
		{raw: `null`, kind: KindUnset},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.raw), &ts); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if ts.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", ts.Kind(), tt.kind)
			}
		})
	}
}

func TestTimestamp_UnmarshalRejectsBool(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`true`), &ts); err == nil {
		t.Error("expected error for boolean timestamp")
	}
}
