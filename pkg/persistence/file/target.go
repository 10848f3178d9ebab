package file

import (
	"context"
	"sort"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

const targetsDir = "targets"

// TargetRepository handles target-related file operations.
type TargetRepository struct {
	store *Persistence
	clock *clock.Clock
}

// Save inserts or updates a target.
func (r *TargetRepository) Save(_ context.Context, target *models.Target) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.clock.Now()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}

	target.UpdatedAt = now

	return r.store.write(targetsDir, target.ID, target)
}

// GetByID returns a target by id, or ErrTargetNotFound.
func (r *TargetRepository) GetByID(_ context.Context, id string) (*models.Target, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.getByID(id)
}

func (r *TargetRepository) getByID(id string) (*models.Target, error) {
	target := &models.Target{}

	found, err := r.store.read(targetsDir, id, target)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, &persistence.TargetError{Op: "GetByID", TargetID: id, Err: persistence.ErrTargetNotFound}
	}

	return target, nil
}

// GetAll returns all targets, newest first.
func (r *TargetRepository) GetAll(_ context.Context) ([]*models.Target, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(targetsDir)
	if err != nil {
		return nil, err
	}

	targets := make([]*models.Target, 0, len(ids))

	for _, id := range ids {
		target, err := r.getByID(id)
		if err != nil {
			return nil, err
		}

		targets = append(targets, target)
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].CreatedAt.After(targets[j].CreatedAt)
	})

	return targets, nil
}

// Delete removes a target together with its schedules, their runs and
// attempts, mirroring the SQL cascade.
func (r *TargetRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	removed, err := r.store.remove(targetsDir, id)
	if err != nil {
		return err
	}

	if !removed {
		return &persistence.TargetError{Op: "Delete", TargetID: id, Err: persistence.ErrTargetNotFound}
	}

	schedules, err := r.store.schedules.listByTarget(id)
	if err != nil {
		return err
	}

	for _, schedule := range schedules {
		if err := r.store.schedules.deleteCascade(schedule.ID); err != nil {
			return err
		}
	}

	return nil
}
