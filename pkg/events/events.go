// Package events defines event types for run lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every run lifecycle event.
const Topic = "strobe.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// RunFiredEvent is published when the scheduler creates a run and hands
	// it to the executor.
	RunFiredEvent EventType = "run.fired"

	// RunFinishedEvent is published when the executor reaches a terminal
	// run status.
	RunFinishedEvent EventType = "run.finished"

	// ScheduleCompletedEvent is published when a schedule's window closes.
	ScheduleCompletedEvent EventType = "schedule.completed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	ScheduleID string         `json:"schedule_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent builds the common envelope for an event. The timestamp is
// the caller's clock reading, normalized to UTC, so event times line up
// with the run records they describe.
func NewBaseEvent(eventType EventType, scheduleID string, now time.Time) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  now.UTC(),
		ScheduleID: scheduleID,
		Metadata:   make(map[string]any),
	}
}

// RunFired announces a firing that produced a run.
type RunFired struct {
	BaseEvent

	RunID       string    `json:"run_id"`
	TargetID    string    `json:"target_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (e RunFired) GetType() EventType {
	return RunFiredEvent
}

// RunFinished announces a run reaching a terminal status.
type RunFinished struct {
	BaseEvent

	RunID        string  `json:"run_id"`
	TargetID     string  `json:"target_id"`
	Status       string  `json:"status"`
	AttemptCount int     `json:"attempt_count"`
	FinalError   *string `json:"final_error,omitempty"`
	DurationMs   int64   `json:"duration_ms"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}

// ScheduleCompleted announces a window closing; the schedule is terminal.
type ScheduleCompleted struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e ScheduleCompleted) GetType() EventType {
	return ScheduleCompletedEvent
}
