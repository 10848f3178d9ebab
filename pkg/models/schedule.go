// Package models defines the core domain models for scheduled HTTP delivery.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleType selects how firing instants are computed.
type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval"
	ScheduleTypeCron     ScheduleType = "cron"
)

// ScheduleStatus represents the lifecycle state of a schedule.
type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCompleted ScheduleStatus = "completed" // Terminal; no further runs are created
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// Schedule is a timing rule producing a sequence of firing instants against
// a target. Exactly one of IntervalSeconds / CronExpression is set,
// matching Type. At most one of DurationSeconds / MaxRuns bounds the window;
// with neither the schedule fires indefinitely.
type Schedule struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"          validate:"required,min=1"`
	TargetID        string         `json:"target_id"     validate:"required"`
	Type            ScheduleType   `json:"schedule_type" validate:"required,oneof=interval cron"`
	IntervalSeconds int            `json:"interval_seconds,omitempty"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	StartAt         time.Time      `json:"start_at"`
	DurationSeconds *int           `json:"duration_seconds,omitempty"`
	MaxRuns         *int           `json:"max_runs,omitempty"`
	Status          ScheduleStatus `json:"status"`

	// RunsCount is the monotonically increasing tally of runs created for
	// this schedule. NextRunAt and LastRunAt are advisory; the authoritative
	// firing time is always recomputed from the rule.
	RunsCount int        `json:"runs_count"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the cross-field rules that struct tags cannot express.
func (s *Schedule) Validate() error {
	switch s.Type {
	case ScheduleTypeInterval:
		if s.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval_seconds must be a positive integer for interval schedules", ErrInvalidSchedule)
		}

		if s.CronExpression != "" {
			return fmt.Errorf("%w: cron_expression must not be set for interval schedules", ErrInvalidSchedule)
		}
	case ScheduleTypeCron:
		if s.CronExpression == "" {
			return fmt.Errorf("%w: cron_expression is required for cron schedules", ErrInvalidSchedule)
		}

		if s.IntervalSeconds != 0 {
			return fmt.Errorf("%w: interval_seconds must not be set for cron schedules", ErrInvalidSchedule)
		}

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidSchedule, err)
		}
	default:
		return fmt.Errorf("%w: unknown schedule_type %q", ErrInvalidSchedule, s.Type)
	}

	if s.DurationSeconds != nil && s.MaxRuns != nil {
		return fmt.Errorf("%w: at most one of duration_seconds and max_runs may be set", ErrInvalidSchedule)
	}

	if s.DurationSeconds != nil && *s.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration_seconds must be a positive integer", ErrInvalidSchedule)
	}

	if s.MaxRuns != nil && *s.MaxRuns <= 0 {
		return fmt.Errorf("%w: max_runs must be a positive integer", ErrInvalidSchedule)
	}

	return nil
}

// WindowEnd returns the instant the duration window closes, or nil when the
// schedule has no duration bound.
func (s *Schedule) WindowEnd() *time.Time {
	if s.DurationSeconds == nil {
		return nil
	}

	end := s.StartAt.Add(time.Duration(*s.DurationSeconds) * time.Second)

	return &end
}

// WindowClosedAt reports whether the window rules out a firing at t.
// A firing exactly at the window end is still allowed; only instants
// strictly past it are excluded.
func (s *Schedule) WindowClosedAt(t time.Time) bool {
	if s.MaxRuns != nil && s.RunsCount >= *s.MaxRuns {
		return true
	}

	if end := s.WindowEnd(); end != nil && t.After(*end) {
		return true
	}

	return false
}
