package scheduler

import (
	"context"
	"fmt"
)

// orphanedError is the terminal error written to runs a prior process left
// mid-flight.
const orphanedError = "orphaned by server restart"

// Recover reconciles durable state with the (empty) timer map on startup.
// It must run before any timer is armed and before the API serves traffic:
// runs left pending or running by a crash are conservatively failed, then
// every active schedule is rearmed, closing windows that expired in the
// meantime. Running it twice changes nothing on the second pass.
func (s *Scheduler) Recover(ctx context.Context) error {
	failed, err := s.persistence.Runs().BulkFailInFlight(ctx, orphanedError, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to fail orphaned runs: %w", err)
	}

	if failed > 0 {
		s.logger.WarnContext(ctx, "Failed orphaned runs from prior process", "count", failed)
	}

	schedules, err := s.persistence.Schedules().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active schedules: %w", err)
	}

	for _, schedule := range schedules {
		s.OnScheduleCreated(ctx, schedule)
	}

	s.logger.InfoContext(ctx, "Recovery complete", "orphaned_runs", failed, "active_schedules", len(schedules))

	return nil
}
