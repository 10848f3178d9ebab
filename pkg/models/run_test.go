package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus_CanTransitionTo(t *testing.T) {
	testCases := []struct {
		name    string
		from    RunStatus
		to      RunStatus
		allowed bool
	}{
		{"pending to running", RunStatusPending, RunStatusRunning, true},
		{"pending to failed", RunStatusPending, RunStatusFailed, true},
		{"pending to succeeded", RunStatusPending, RunStatusSucceeded, true},
		{"running to succeeded", RunStatusRunning, RunStatusSucceeded, true},
		{"running to failed", RunStatusRunning, RunStatusFailed, true},
		{"running to running", RunStatusRunning, RunStatusRunning, false},
		{"succeeded to failed", RunStatusSucceeded, RunStatusFailed, false},
		{"succeeded to running", RunStatusSucceeded, RunStatusRunning, false},
		{"failed to succeeded", RunStatusFailed, RunStatusSucceeded, false},
		{"running to pending", RunStatusRunning, RunStatusPending, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestNewRun(t *testing.T) {
	scheduledAt := time.Date(2025, 3, 10, 14, 30, 45, 987654321, time.UTC)

	run := NewRun("sched-1", "target-1", scheduledAt)

	assert.Equal(t, "sched-1", run.ScheduleID)
	assert.Equal(t, "target-1", run.TargetID)
	assert.Equal(t, RunStatusPending, run.Status)

	// scheduled_at is floored to the second and the key derives from the
	// floored instant, so the two always agree.
	assert.Equal(t, scheduledAt.Truncate(time.Second), run.ScheduledAt)
	assert.Equal(t, "sched-1:20250310143045", run.IdempotencyKey)
}

func TestRunIdempotencyKey(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 30, 45, 0, time.UTC)

	// Sub-second jitter maps to the same key.
	assert.Equal(t,
		RunIdempotencyKey("s1", base),
		RunIdempotencyKey("s1", base.Add(500*time.Millisecond)),
	)

	// Distinct seconds and distinct schedules map to distinct keys.
	assert.NotEqual(t,
		RunIdempotencyKey("s1", base),
		RunIdempotencyKey("s1", base.Add(time.Second)),
	)
	assert.NotEqual(t,
		RunIdempotencyKey("s1", base),
		RunIdempotencyKey("s2", base),
	)
}

func TestErrorClass_Retriable(t *testing.T) {
	assert.False(t, ErrorClassNone.Retriable())
	assert.False(t, ErrorClassHTTP4xx.Retriable())

	assert.True(t, ErrorClassTimeout.Retriable())
	assert.True(t, ErrorClassDNS.Retriable())
	assert.True(t, ErrorClassConnection.Retriable())
	assert.True(t, ErrorClassSSL.Retriable())
	assert.True(t, ErrorClassHTTP5xx.Retriable())
	assert.True(t, ErrorClassUnknown.Retriable())
}
