package ratelimit

import (
	"testing"
	"time"
)

func TestState_NeedsWait(t *testing.T) {
	tests := []struct {
		name         string
		remaining    int
		safetyBuffer int
		expected     bool
	}{
		{
			name:         "budget left",
			remaining:    5,
			safetyBuffer: 0,
			expected:     false,
		},
		{
			name:         "budget spent",
			remaining:    0,
			safetyBuffer: 0,
			expected:     true,
		},
		{
			name:         "at safety buffer",
			remaining:    2,
			safetyBuffer: 2,
			expected:     true,
		},
		{
			name:         "just above safety buffer",
			remaining:    3,
			safetyBuffer: 2,
			expected:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := State{Remaining: tt.remaining, SafetyBuffer: tt.safetyBuffer}
			if got := state.NeedsWait(); got != tt.expected {
				t.Errorf("NeedsWait() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		resetAt  time.Time
		expected time.Duration
	}{
		{
			name:     "reset in the future",
			resetAt:  now.Add(30 * time.Second),
			expected: 30 * time.Second,
		},
		{
			name:     "reset in the past",
			resetAt:  now.Add(-10 * time.Second),
			expected: 0,
		},
		{
			name:     "reset now",
			resetAt:  now,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := State{ResetAt: tt.resetAt}
			if got := state.TimeUntilReset(now); got != tt.expected {
				t.Errorf("TimeUntilReset() = %v, want %v", got, tt.expected)
			}
		})
	}
}
