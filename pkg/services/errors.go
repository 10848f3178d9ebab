// Package services implements the operations the API layer may invoke on
// the core: CRUD over targets and schedules, pause/resume, and reads over
// runs and attempts. Services validate, persist, and notify the scheduler;
// they never fire runs or write attempts.
package services

import (
	"errors"

	"github.com/dukex/strobe/pkg/models"
)

// Business logic errors. Validation errors map to 400 responses, conflict
// errors to 409.
var (
	// Validation errors (400 Bad Request). Pausing a non-active schedule or
	// resuming a non-paused one is a request error, not a conflict.
	ErrInvalidRequest    = errors.New("invalid request")
	ErrTimeoutOutOfRange = errors.New("timeout_seconds out of range")
	ErrScheduleNotActive = errors.New("schedule is not active")
	ErrScheduleNotPaused = errors.New("schedule is not paused")

	// State conflicts (409 Conflict).
	ErrScheduleCompleted = errors.New("schedule is completed")
)

// IsValidationError checks if an error should surface as HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTimeoutOutOfRange) ||
		errors.Is(err, ErrScheduleNotActive) ||
		errors.Is(err, ErrScheduleNotPaused) ||
		errors.Is(err, models.ErrInvalidTarget) ||
		errors.Is(err, models.ErrInvalidSchedule)
}

// IsConflictError checks if an error should surface as HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrScheduleCompleted)
}
