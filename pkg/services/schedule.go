package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// ErrScheduleNotFound is returned when a schedule is not found.
var ErrScheduleNotFound = persistence.ErrScheduleNotFound

// Schedule is the service over timing rules. Every mutation is persisted
// first and then notified to the scheduler, which owns the armed timers.
type Schedule struct {
	persistence persistence.Persistence
	notifier    ScheduleNotifier
	clock       *clock.Clock
}

// NewSchedule creates a new schedule service.
func NewSchedule(p persistence.Persistence, notifier ScheduleNotifier, clk *clock.Clock) *Schedule {
	return &Schedule{persistence: p, notifier: notifier, clock: clk}
}

// Create validates and persists a new schedule, arming it on commit.
// start_at defaults to now; status starts active.
func (s *Schedule) Create(ctx context.Context, schedule *models.Schedule) (*models.Schedule, error) {
	if schedule.StartAt.IsZero() {
		schedule.StartAt = s.clock.Now()
	}

	schedule.Status = models.ScheduleStatusActive
	schedule.RunsCount = 0

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.persistence.Targets().GetByID(ctx, schedule.TargetID); err != nil {
		return nil, err
	}

	schedule.ID = uuid.Must(uuid.NewV7()).String()

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.notifier.OnScheduleCreated(ctx, schedule)

	return schedule, nil
}

// Update applies new settings. An in-flight run completes under the old
// settings; the next arming uses the new ones.
func (s *Schedule) Update(ctx context.Context, id string, schedule *models.Schedule) (*models.Schedule, error) {
	existing, err := s.persistence.Schedules().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.ScheduleStatusCompleted {
		return nil, ErrScheduleCompleted
	}

	schedule.ID = existing.ID
	schedule.Status = existing.Status
	schedule.RunsCount = existing.RunsCount
	schedule.LastRunAt = existing.LastRunAt
	schedule.CreatedAt = existing.CreatedAt

	if schedule.StartAt.IsZero() {
		schedule.StartAt = existing.StartAt
	}

	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.persistence.Targets().GetByID(ctx, schedule.TargetID); err != nil {
		return nil, err
	}

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.notifier.OnScheduleUpdated(ctx, schedule)

	return schedule, nil
}

// FetchByID returns one schedule.
func (s *Schedule) FetchByID(ctx context.Context, id string) (*models.Schedule, error) {
	return s.persistence.Schedules().GetByID(ctx, id)
}

// List returns all schedules, newest first.
func (s *Schedule) List(ctx context.Context) ([]*models.Schedule, error) {
	return s.persistence.Schedules().GetAll(ctx)
}

// Pause disarms future firings of an active schedule. In-flight work is
// not cancelled; it completes and records its attempts.
func (s *Schedule) Pause(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.persistence.Schedules().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if schedule.Status != models.ScheduleStatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrScheduleNotActive, schedule.Status)
	}

	schedule.Status = models.ScheduleStatusPaused
	schedule.NextRunAt = nil

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.notifier.OnSchedulePaused(ctx, id)

	return schedule, nil
}

// Resume rearms a paused schedule from the next computed firing. A
// schedule whose window closed while paused transitions to completed
// instead; the scheduler makes that call during rearm.
func (s *Schedule) Resume(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.persistence.Schedules().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if schedule.Status != models.ScheduleStatusPaused {
		return nil, fmt.Errorf("%w: status is %s", ErrScheduleNotPaused, schedule.Status)
	}

	schedule.Status = models.ScheduleStatusActive

	if err := s.persistence.Schedules().Save(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}

	s.notifier.OnScheduleResumed(ctx, schedule)

	// The scheduler may complete the schedule synchronously during rearm.
	return s.persistence.Schedules().GetByID(ctx, id)
}

// Delete disarms the schedule's timer synchronously and removes the row
// with its runs and attempts.
func (s *Schedule) Delete(ctx context.Context, id string) error {
	if _, err := s.persistence.Schedules().GetByID(ctx, id); err != nil {
		return err
	}

	s.notifier.OnScheduleDeleted(ctx, id)

	if err := s.persistence.Schedules().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}
