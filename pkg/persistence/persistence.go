// Package persistence provides the data storage abstraction for targets,
// schedules, runs and attempts.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/strobe/pkg/models"
)

// RunFilter narrows run listings. Zero values mean "no constraint"; Limit
// defaults to 100 and is capped at 1000 by implementations.
type RunFilter struct {
	ScheduleID      string
	Status          models.RunStatus
	ScheduledAfter  *time.Time
	ScheduledBefore *time.Time
	Limit           int
	Offset          int
}

// RunStatusUpdate carries the fields written together with a run status
// transition. Nil fields are left untouched.
type RunStatusUpdate struct {
	StartedAt    *time.Time
	CompletedAt  *time.Time
	AttemptCount *int
	FinalError   *string
}

// TargetRepository stores declared HTTP endpoints. Delete cascades to the
// target's schedules, their runs and attempts.
type TargetRepository interface {
	Save(ctx context.Context, target *models.Target) error
	GetByID(ctx context.Context, id string) (*models.Target, error)
	GetAll(ctx context.Context) ([]*models.Target, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository stores timing rules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	GetAll(ctx context.Context) ([]*models.Schedule, error)
	ListByTarget(ctx context.Context, targetID string) ([]*models.Schedule, error)
	ListActive(ctx context.Context) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}

// RunRepository stores firing records. Create fails with ErrDuplicateRun
// when the idempotency key collides; UpdateStatus only permits the legal
// transitions (pending to running, non-terminal to terminal) and fails with
// ErrInvalidRunTransition otherwise. Both must be atomic per run.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	GetByID(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, filter RunFilter) ([]*models.Run, error)
	Count(ctx context.Context, filter RunFilter) (int, error)
	CountInFlight(ctx context.Context, scheduleID string) (int, error)
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, update RunStatusUpdate) error

	// BulkFailInFlight marks every pending or running run failed with the
	// given terminal error. Used by startup recovery; returns the number of
	// runs touched.
	BulkFailInFlight(ctx context.Context, finalError string, completedAt time.Time) (int, error)
}

// AttemptRepository is append-only storage for HTTP tries.
type AttemptRepository interface {
	Append(ctx context.Context, attempt *models.Attempt) error
	ListByRun(ctx context.Context, runID string) ([]*models.Attempt, error)

	// ErrorBreakdown tallies attempts per error class; AverageLatencyMs
	// averages attempt duration. An empty scheduleID means all schedules; a
	// zero since means all time.
	ErrorBreakdown(ctx context.Context, scheduleID string, since time.Time) (map[models.ErrorClass]int, error)
	AverageLatencyMs(ctx context.Context, scheduleID string, since time.Time) (float64, error)
}

// Persistence aggregates the four repositories behind one backend.
type Persistence interface {
	Targets() TargetRepository
	Schedules() ScheduleRepository
	Runs() RunRepository
	Attempts() AttemptRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
