package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTargetNotFound indicates a target was not found by the given identifier.
	ErrTargetNotFound = errors.New("target not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun indicates a run insert collided on the idempotency
	// key: the firing was already handled.
	ErrDuplicateRun = errors.New("duplicate run for idempotency key")

	// ErrInvalidRunTransition indicates an attempt to move a run out of a
	// terminal status, or to running from anything but pending.
	ErrInvalidRunTransition = errors.New("invalid run status transition")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "Create", "UpdateStatus")
	RunID string // Run ID if applicable
	Key   string // Idempotency key if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	target := e.RunID
	if e.Key != "" {
		target = fmt.Sprintf("key %s", e.Key)
	}

	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, target, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// ScheduleError wraps schedule-related errors with additional context.
type ScheduleError struct {
	Op         string // Operation being performed
	ScheduleID string // Schedule ID
	Err        error  // Underlying error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("%s operation failed for schedule %s: %v", e.Op, e.ScheduleID, e.Err)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

func (e *ScheduleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// TargetError wraps target-related errors with additional context.
type TargetError struct {
	Op       string // Operation being performed
	TargetID string // Target ID
	Err      error  // Underlying error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s operation failed for target %s: %v", e.Op, e.TargetID, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

func (e *TargetError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTargetNotFound checks if an error indicates a target was not found.
func IsTargetNotFound(err error) bool {
	return errors.Is(err, ErrTargetNotFound)
}

// IsScheduleNotFound checks if an error indicates a schedule was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsDuplicateRun checks if an error indicates an idempotency-key collision.
func IsDuplicateRun(err error) bool {
	return errors.Is(err, ErrDuplicateRun)
}
