// Package web provides HTTP request types and REST handlers for the
// scheduling API.
package web

import "time"

// CreateTargetRequest represents the request body for declaring a new target.
// A zero timeout falls back to the configured default.
type CreateTargetRequest struct {
	Name           string            `json:"name"    validate:"required,min=1"`
	URL            string            `json:"url"     validate:"required,url"`
	Method         string            `json:"method"  validate:"required,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers        map[string]string `json:"headers,omitempty"`
	BodyTemplate   string            `json:"body_template,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
}

// UpdateTargetRequest represents the request body for updating a target.
// All fields are optional to support partial updates; in-flight runs keep
// the request they were materialized with.
type UpdateTargetRequest struct {
	Name           *string           `json:"name,omitempty"    validate:"omitempty,min=1"`
	URL            *string           `json:"url,omitempty"     validate:"omitempty,url"`
	Method         *string           `json:"method,omitempty"  validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers        map[string]string `json:"headers,omitempty"`
	BodyTemplate   *string           `json:"body_template,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
}

// CreateScheduleRequest represents the request body for creating a schedule.
// Exactly one of interval_seconds / cron_expression must be set, matching
// schedule_type; the cross-field rules live in the model.
type CreateScheduleRequest struct {
	Name            string     `json:"name"          validate:"required,min=1"`
	TargetID        string     `json:"target_id"     validate:"required"`
	Type            string     `json:"schedule_type" validate:"required,oneof=interval cron"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	CronExpression  string     `json:"cron_expression,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty" validate:"omitempty,min=1"`
	MaxRuns         *int       `json:"max_runs,omitempty"         validate:"omitempty,min=1"`
}

// UpdateScheduleRequest represents the request body for updating a schedule.
// Omitted fields keep their current value; the schedule is disarmed and
// rearmed under the merged settings.
type UpdateScheduleRequest struct {
	Name            *string    `json:"name,omitempty"          validate:"omitempty,min=1"`
	TargetID        *string    `json:"target_id,omitempty"`
	Type            *string    `json:"schedule_type,omitempty" validate:"omitempty,oneof=interval cron"`
	IntervalSeconds *int       `json:"interval_seconds,omitempty"`
	CronExpression  *string    `json:"cron_expression,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty" validate:"omitempty,min=1"`
	MaxRuns         *int       `json:"max_runs,omitempty"         validate:"omitempty,min=1"`
}
