package main

import (
	"context"

	"github.com/dukex/strobe/pkg/eventbus"
	"github.com/dukex/strobe/pkg/events"
	"github.com/dukex/strobe/pkg/log"
)

// registerRunEventLog subscribes to the run lifecycle topic and mirrors
// every event into the structured log, so operators get a firing audit
// stream without querying the store.
func registerRunEventLog(ctx context.Context, bus eventbus.EventBus) error {
	logger := log.WithModule("events")

	err := bus.Handle(events.RunFiredEvent, func(ctx context.Context, event any) error {
		fired, ok := event.(*events.RunFired)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Run fired",
			"run_id", fired.RunID,
			"schedule_id", fired.ScheduleID,
			"target_id", fired.TargetID,
			"scheduled_at", fired.ScheduledAt)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.RunFinishedEvent, func(ctx context.Context, event any) error {
		finished, ok := event.(*events.RunFinished)
		if !ok {
			return nil
		}

		attrs := []any{
			"run_id", finished.RunID,
			"schedule_id", finished.ScheduleID,
			"status", finished.Status,
			"attempts", finished.AttemptCount,
			"duration_ms", finished.DurationMs,
		}
		if finished.FinalError != nil {
			attrs = append(attrs, "final_error", *finished.FinalError)
		}

		logger.InfoContext(ctx, "Run finished", attrs...)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.ScheduleCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.ScheduleCompleted)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Schedule completed",
			"schedule_id", completed.ScheduleID,
			"reason", completed.Reason)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
