package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// ErrTargetNotFound is returned when a target is not found.
var ErrTargetNotFound = persistence.ErrTargetNotFound

// TargetLimits bounds the per-attempt timeout accepted on create and update.
type TargetLimits struct {
	DefaultTimeoutSeconds int
	MaxTimeoutSeconds     int
}

// Target is the service over declared HTTP endpoints.
type Target struct {
	persistence persistence.Persistence
	notifier    ScheduleNotifier
	clock       *clock.Clock
	limits      TargetLimits
}

// NewTarget creates a new target service.
func NewTarget(p persistence.Persistence, notifier ScheduleNotifier, clk *clock.Clock, limits TargetLimits) *Target {
	if limits.DefaultTimeoutSeconds <= 0 {
		limits.DefaultTimeoutSeconds = 30
	}

	if limits.MaxTimeoutSeconds <= 0 {
		limits.MaxTimeoutSeconds = 120
	}

	return &Target{persistence: p, notifier: notifier, clock: clk, limits: limits}
}

// HealthCheck checks the health of the persistence layer.
func (s *Target) HealthCheck(ctx context.Context) (string, bool) {
	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and persists a new target. A missing timeout falls back
// to the configured default; no state is written on rejection.
func (s *Target) Create(ctx context.Context, target *models.Target) (*models.Target, error) {
	if target.TimeoutSeconds == 0 {
		target.TimeoutSeconds = s.limits.DefaultTimeoutSeconds
	}

	if err := s.validate(target); err != nil {
		return nil, err
	}

	target.ID = uuid.Must(uuid.NewV7()).String()

	if err := s.persistence.Targets().Save(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to save target: %w", err)
	}

	return target, nil
}

// Update applies changes to an existing target. In-flight runs keep the
// request they were materialized with.
func (s *Target) Update(ctx context.Context, id string, target *models.Target) (*models.Target, error) {
	existing, err := s.persistence.Targets().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target.ID = existing.ID
	target.CreatedAt = existing.CreatedAt

	if target.TimeoutSeconds == 0 {
		target.TimeoutSeconds = existing.TimeoutSeconds
	}

	if err := s.validate(target); err != nil {
		return nil, err
	}

	if err := s.persistence.Targets().Save(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to save target: %w", err)
	}

	return target, nil
}

// FetchByID returns one target.
func (s *Target) FetchByID(ctx context.Context, id string) (*models.Target, error) {
	return s.persistence.Targets().GetByID(ctx, id)
}

// List returns all targets, newest first.
func (s *Target) List(ctx context.Context) ([]*models.Target, error) {
	return s.persistence.Targets().GetAll(ctx)
}

// Delete disarms every schedule referencing the target before the cascading
// delete commits, so no firing can hit a row that is about to disappear.
func (s *Target) Delete(ctx context.Context, id string) error {
	if _, err := s.persistence.Targets().GetByID(ctx, id); err != nil {
		return err
	}

	s.notifier.OnTargetDeleted(ctx, id)

	if err := s.persistence.Targets().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	return nil
}

func (s *Target) validate(target *models.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	if target.TimeoutSeconds > s.limits.MaxTimeoutSeconds {
		return fmt.Errorf("%w: must be between 1 and %d", ErrTimeoutOutOfRange, s.limits.MaxTimeoutSeconds)
	}

	return nil
}
