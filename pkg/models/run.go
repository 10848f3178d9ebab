package models

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is final. Terminal runs are immutable.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// CanTransitionTo enforces the run state machine: pending may start running,
// and any non-terminal state may finish, but terminal states never change.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.Terminal() {
		return false
	}

	if next == RunStatusRunning {
		return s == RunStatusPending
	}

	return next.Terminal()
}

// Run is the durable record of one intended firing of a schedule. The
// idempotency key converts duplicate firings for the same instant into
// no-ops: inserting a run succeeds exactly once per (schedule, second).
type Run struct {
	ID             string     `json:"id"`
	ScheduleID     string     `json:"schedule_id" validate:"required"`
	TargetID       string     `json:"target_id"   validate:"required"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Status         RunStatus  `json:"status"`
	IdempotencyKey string     `json:"idempotency_key"`
	AttemptCount   int        `json:"attempt_count"`
	FinalError     *string    `json:"final_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewRun builds a pending run for the given firing instant. The instant is
// floored to the second before both the stored scheduled_at and the
// idempotency key are derived from it, so the two always agree.
func NewRun(scheduleID, targetID string, scheduledAt time.Time) *Run {
	floored := scheduledAt.Truncate(time.Second)

	return &Run{
		ScheduleID:     scheduleID,
		TargetID:       targetID,
		ScheduledAt:    floored,
		Status:         RunStatusPending,
		IdempotencyKey: RunIdempotencyKey(scheduleID, floored),
	}
}

// RunIdempotencyKey renders the unique key for a firing:
// <schedule_id>:<scheduled_at floored to the second>, the second rendered as
// a compact wall-clock stamp in the instant's own zone.
func RunIdempotencyKey(scheduleID string, scheduledAt time.Time) string {
	return scheduleID + ":" + scheduledAt.Truncate(time.Second).Format("20060102150405")
}
