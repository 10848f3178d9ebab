package services

import (
	"context"

	"github.com/dukex/strobe/pkg/models"
)

// ScheduleNotifier receives the schedule lifecycle events the services
// produce. Implemented by the scheduler; a no-op implementation serves
// tests that only exercise persistence.
type ScheduleNotifier interface {
	OnScheduleCreated(ctx context.Context, schedule *models.Schedule)
	OnScheduleUpdated(ctx context.Context, schedule *models.Schedule)
	OnSchedulePaused(ctx context.Context, id string)
	OnScheduleResumed(ctx context.Context, schedule *models.Schedule)
	OnScheduleDeleted(ctx context.Context, id string)
	OnTargetDeleted(ctx context.Context, targetID string)
}

// NoopNotifier discards lifecycle notifications.
type NoopNotifier struct{}

func (NoopNotifier) OnScheduleCreated(context.Context, *models.Schedule) {}
func (NoopNotifier) OnScheduleUpdated(context.Context, *models.Schedule) {}
func (NoopNotifier) OnSchedulePaused(context.Context, string)            {}
func (NoopNotifier) OnScheduleResumed(context.Context, *models.Schedule) {}
func (NoopNotifier) OnScheduleDeleted(context.Context, string)           {}
func (NoopNotifier) OnTargetDeleted(context.Context, string)             {}
