package services

import (
	"context"

	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// ErrRunNotFound is returned when a run is not found.
var ErrRunNotFound = persistence.ErrRunNotFound

// Run is the read-only service over the audit trail. The API layer never
// creates runs or attempts; those belong to the scheduler and executor.
type Run struct {
	persistence persistence.Persistence
}

// NewRun creates a new run service.
func NewRun(p persistence.Persistence) *Run {
	return &Run{persistence: p}
}

// RunWithAttempts is a run together with its ordered attempt trail.
type RunWithAttempts struct {
	*models.Run

	Attempts []*models.Attempt `json:"attempts"`
}

// List returns runs matching the filter, newest scheduled_at first.
func (s *Run) List(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	return s.persistence.Runs().List(ctx, filter)
}

// Count returns the number of runs matching the filter.
func (s *Run) Count(ctx context.Context, filter persistence.RunFilter) (int, error) {
	return s.persistence.Runs().Count(ctx, filter)
}

// FetchByID returns one run with its attempts.
func (s *Run) FetchByID(ctx context.Context, id string) (*RunWithAttempts, error) {
	run, err := s.persistence.Runs().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	attempts, err := s.persistence.Attempts().ListByRun(ctx, id)
	if err != nil {
		return nil, err
	}

	return &RunWithAttempts{Run: run, Attempts: attempts}, nil
}

// Attempts returns a run's attempts ordered by attempt_number.
func (s *Run) Attempts(ctx context.Context, runID string) ([]*models.Attempt, error) {
	if _, err := s.persistence.Runs().GetByID(ctx, runID); err != nil {
		return nil, err
	}

	return s.persistence.Attempts().ListByRun(ctx, runID)
}
