package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
)

const attemptsDir = "attempts"

// AttemptRepository is append-only file storage for HTTP tries.
type AttemptRepository struct {
	store *Persistence
	clock *clock.Clock
}

// Append inserts an attempt.
func (r *AttemptRepository) Append(_ context.Context, attempt *models.Attempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.store.write(attemptsDir, attempt.ID, attempt)
}

// ListByRun returns a run's attempts ordered by attempt_number.
func (r *AttemptRepository) ListByRun(_ context.Context, runID string) ([]*models.Attempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.listByRun(runID)
}

func (r *AttemptRepository) listByRun(runID string) ([]*models.Attempt, error) {
	attempts, err := r.allAttempts()
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Attempt, 0)

	for _, attempt := range attempts {
		if attempt.RunID == runID {
			matching = append(matching, attempt)
		}
	}

	sort.Slice(matching, func(i, j int) bool {
		return matching[i].AttemptNumber < matching[j].AttemptNumber
	})

	return matching, nil
}

// ErrorBreakdown tallies attempts per error class since the given instant.
func (r *AttemptRepository) ErrorBreakdown(_ context.Context, scheduleID string, since time.Time) (map[models.ErrorClass]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	attempts, err := r.matching(scheduleID, since)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[models.ErrorClass]int)

	for _, attempt := range attempts {
		breakdown[attempt.ErrorClass]++
	}

	return breakdown, nil
}

// AverageLatencyMs averages attempt duration since the given instant.
func (r *AttemptRepository) AverageLatencyMs(_ context.Context, scheduleID string, since time.Time) (float64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	attempts, err := r.matching(scheduleID, since)
	if err != nil {
		return 0, err
	}

	if len(attempts) == 0 {
		return 0, nil
	}

	var total int64

	for _, attempt := range attempts {
		total += attempt.DurationMs
	}

	return float64(total) / float64(len(attempts)), nil
}

// matching filters attempts by schedule (through their runs) and start time.
// Callers hold at least the read lock.
func (r *AttemptRepository) matching(scheduleID string, since time.Time) ([]*models.Attempt, error) {
	attempts, err := r.allAttempts()
	if err != nil {
		return nil, err
	}

	runSchedules := make(map[string]string)

	if scheduleID != "" {
		runs, err := r.store.runs.listBySchedule(scheduleID)
		if err != nil {
			return nil, err
		}

		for _, run := range runs {
			runSchedules[run.ID] = run.ScheduleID
		}
	}

	filtered := make([]*models.Attempt, 0, len(attempts))

	for _, attempt := range attempts {
		if scheduleID != "" && runSchedules[attempt.RunID] != scheduleID {
			continue
		}

		if attempt.StartedAt.Before(since) {
			continue
		}

		filtered = append(filtered, attempt)
	}

	return filtered, nil
}

func (r *AttemptRepository) allAttempts() ([]*models.Attempt, error) {
	ids, err := r.store.ids(attemptsDir)
	if err != nil {
		return nil, err
	}

	attempts := make([]*models.Attempt, 0, len(ids))

	for _, id := range ids {
		attempt := &models.Attempt{}

		found, err := r.store.read(attemptsDir, id, attempt)
		if err != nil {
			return nil, err
		}

		if found {
			attempts = append(attempts, attempt)
		}
	}

	return attempts, nil
}
