package file

import (
	"context"
	"sort"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

const schedulesDir = "schedules"

// ScheduleRepository handles schedule-related file operations.
type ScheduleRepository struct {
	store *Persistence
	clock *clock.Clock
}

// Save inserts or updates a schedule.
func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.clock.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	return r.store.write(schedulesDir, schedule.ID, schedule)
}

// GetByID returns a schedule by id, or ErrScheduleNotFound.
func (r *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.getByID(id)
}

func (r *ScheduleRepository) getByID(id string) (*models.Schedule, error) {
	schedule := &models.Schedule{}

	found, err := r.store.read(schedulesDir, id, schedule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, &persistence.ScheduleError{Op: "GetByID", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
	}

	return schedule, nil
}

// GetAll returns all schedules, newest first.
func (r *ScheduleRepository) GetAll(_ context.Context) ([]*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	schedules, err := r.all()
	if err != nil {
		return nil, err
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.After(schedules[j].CreatedAt)
	})

	return schedules, nil
}

// ListByTarget returns the schedules referencing a target.
func (r *ScheduleRepository) ListByTarget(_ context.Context, targetID string) ([]*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.listByTarget(targetID)
}

// ListActive returns every schedule with status=active.
func (r *ScheduleRepository) ListActive(_ context.Context) ([]*models.Schedule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	schedules, err := r.all()
	if err != nil {
		return nil, err
	}

	active := make([]*models.Schedule, 0, len(schedules))

	for _, schedule := range schedules {
		if schedule.Status == models.ScheduleStatusActive {
			active = append(active, schedule)
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active, nil
}

// Delete removes a schedule together with its runs and attempts.
func (r *ScheduleRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.getByID(id); err != nil {
		return err
	}

	return r.deleteCascade(id)
}

func (r *ScheduleRepository) all() ([]*models.Schedule, error) {
	ids, err := r.store.ids(schedulesDir)
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		schedule, err := r.getByID(id)
		if err != nil {
			return nil, err
		}

		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

func (r *ScheduleRepository) listByTarget(targetID string) ([]*models.Schedule, error) {
	schedules, err := r.all()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Schedule, 0)

	for _, schedule := range schedules {
		if schedule.TargetID == targetID {
			matching = append(matching, schedule)
		}
	}

	return matching, nil
}

// deleteCascade removes the schedule file plus the runs and attempts
// hanging off it. Callers hold the store lock.
func (r *ScheduleRepository) deleteCascade(id string) error {
	if _, err := r.store.remove(schedulesDir, id); err != nil {
		return err
	}

	runs, err := r.store.runs.listBySchedule(id)
	if err != nil {
		return err
	}

	for _, run := range runs {
		if err := r.store.runs.deleteCascade(run.ID); err != nil {
			return err
		}
	}

	return nil
}
