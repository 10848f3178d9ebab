package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

const runsDir = "runs"

// RunRepository handles run-related file operations. The whole-store lock
// makes the idempotency check plus insert atomic, matching the unique index
// of the PostgreSQL backend.
type RunRepository struct {
	store *Persistence
	clock *clock.Clock
}

// Create inserts a pending run. Fails with ErrDuplicateRun when the
// idempotency key collides with an existing run.
func (r *RunRepository) Create(_ context.Context, run *models.Run) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.allRuns()
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.IdempotencyKey == run.IdempotencyKey {
			return &persistence.RunError{Op: "Create", Key: run.IdempotencyKey, Err: persistence.ErrDuplicateRun}
		}
	}

	now := r.clock.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	return r.store.write(runsDir, run.ID, run)
}

// GetByID returns a run by id, or ErrRunNotFound.
func (r *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.getByID(id)
}

func (r *RunRepository) getByID(id string) (*models.Run, error) {
	run := &models.Run{}

	found, err := r.store.read(runsDir, id, run)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, &persistence.RunError{Op: "GetByID", RunID: id, Err: persistence.ErrRunNotFound}
	}

	return run, nil
}

// List returns runs matching the filter, newest scheduled_at first.
func (r *RunRepository) List(_ context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matching, err := r.filtered(filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].ScheduledAt.After(matching[j].ScheduledAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	if limit > 1000 {
		limit = 1000
	}

	start := filter.Offset
	if start > len(matching) {
		start = len(matching)
	}

	end := start + limit
	if end > len(matching) {
		end = len(matching)
	}

	return matching[start:end], nil
}

// Count returns the number of runs matching the filter.
func (r *RunRepository) Count(_ context.Context, filter persistence.RunFilter) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	matching, err := r.filtered(filter)
	if err != nil {
		return 0, err
	}

	return len(matching), nil
}

// CountInFlight returns the number of pending or running runs for a schedule.
func (r *RunRepository) CountInFlight(_ context.Context, scheduleID string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	runs, err := r.listBySchedule(scheduleID)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, run := range runs {
		if run.Status == models.RunStatusPending || run.Status == models.RunStatusRunning {
			count++
		}
	}

	return count, nil
}

// UpdateStatus applies a run status transition, enforcing the state machine.
func (r *RunRepository) UpdateStatus(_ context.Context, id string, status models.RunStatus, update persistence.RunStatusUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	run, err := r.getByID(id)
	if err != nil {
		return err
	}

	if !run.Status.CanTransitionTo(status) {
		return &persistence.RunError{Op: "UpdateStatus", RunID: id, Err: persistence.ErrInvalidRunTransition}
	}

	run.Status = status

	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}

	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}

	if update.AttemptCount != nil {
		run.AttemptCount = *update.AttemptCount
	}

	if update.FinalError != nil {
		run.FinalError = update.FinalError
	}

	run.UpdatedAt = r.clock.Now()

	return r.store.write(runsDir, run.ID, run)
}

// BulkFailInFlight marks every pending or running run failed.
func (r *RunRepository) BulkFailInFlight(_ context.Context, finalError string, completedAt time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	runs, err := r.allRuns()
	if err != nil {
		return 0, err
	}

	failed := 0

	for _, run := range runs {
		if run.Status != models.RunStatusPending && run.Status != models.RunStatusRunning {
			continue
		}

		run.Status = models.RunStatusFailed
		run.FinalError = &finalError
		run.CompletedAt = &completedAt
		run.UpdatedAt = r.clock.Now()

		if err := r.store.write(runsDir, run.ID, run); err != nil {
			return failed, err
		}

		failed++
	}

	return failed, nil
}

func (r *RunRepository) allRuns() ([]*models.Run, error) {
	ids, err := r.store.ids(runsDir)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.Run, 0, len(ids))

	for _, id := range ids {
		run, err := r.getByID(id)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

func (r *RunRepository) listBySchedule(scheduleID string) ([]*models.Run, error) {
	runs, err := r.allRuns()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Run, 0)

	for _, run := range runs {
		if run.ScheduleID == scheduleID {
			matching = append(matching, run)
		}
	}

	return matching, nil
}

func (r *RunRepository) filtered(filter persistence.RunFilter) ([]*models.Run, error) {
	runs, err := r.allRuns()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Run, 0, len(runs))

	for _, run := range runs {
		if filter.ScheduleID != "" && run.ScheduleID != filter.ScheduleID {
			continue
		}

		if filter.Status != "" && run.Status != filter.Status {
			continue
		}

		if filter.ScheduledAfter != nil && run.ScheduledAt.Before(*filter.ScheduledAfter) {
			continue
		}

		if filter.ScheduledBefore != nil && run.ScheduledAt.After(*filter.ScheduledBefore) {
			continue
		}

		matching = append(matching, run)
	}

	return matching, nil
}

// deleteCascade removes the run file and its attempts. Callers hold the
// store lock.
func (r *RunRepository) deleteCascade(id string) error {
	if _, err := r.store.remove(runsDir, id); err != nil {
		return err
	}

	attempts, err := r.store.attempts.listByRun(id)
	if err != nil {
		return err
	}

	for _, attempt := range attempts {
		if _, err := r.store.remove(attemptsDir, attempt.ID); err != nil {
			return err
		}
	}

	return nil
}
