// Package metrics aggregates run outcomes from the store for the metrics
// endpoints. Everything is computed from durable state; there are no
// in-process counters to drift from the audit trail.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// window is the lookback for rate and latency figures.
const window = 24 * time.Hour

// Summary is the JSON shape of the metrics endpoints.
type Summary struct {
	Runs             map[models.RunStatus]int      `json:"runs"`
	TotalRuns        int                           `json:"total_runs"`
	SuccessRate24h   float64                       `json:"success_rate_24h"`
	AvgLatencyMs24h  float64                       `json:"avg_latency_ms_24h"`
	ErrorBreakdown   map[models.ErrorClass]int     `json:"error_breakdown"`
	SchedulesByState map[models.ScheduleStatus]int `json:"schedules_by_status,omitempty"`
	GeneratedAt      time.Time                     `json:"generated_at"`
}

// Collector computes metric summaries from the store.
type Collector struct {
	persistence persistence.Persistence
	clock       *clock.Clock
}

// NewCollector creates a metrics collector.
func NewCollector(p persistence.Persistence, clk *clock.Clock) *Collector {
	return &Collector{persistence: p, clock: clk}
}

// Summary aggregates global or per-schedule figures. An empty scheduleID
// means all schedules.
func (c *Collector) Summary(ctx context.Context, scheduleID string) (*Summary, error) {
	now := c.clock.Now()
	since := now.Add(-window)

	summary := &Summary{
		Runs:           make(map[models.RunStatus]int),
		ErrorBreakdown: make(map[models.ErrorClass]int),
		GeneratedAt:    now,
	}

	statuses := []models.RunStatus{
		models.RunStatusPending,
		models.RunStatusRunning,
		models.RunStatusSucceeded,
		models.RunStatusFailed,
	}

	for _, status := range statuses {
		count, err := c.persistence.Runs().Count(ctx, persistence.RunFilter{
			ScheduleID: scheduleID,
			Status:     status,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s runs: %w", status, err)
		}

		summary.Runs[status] = count
		summary.TotalRuns += count
	}

	succeeded, err := c.persistence.Runs().Count(ctx, persistence.RunFilter{
		ScheduleID:     scheduleID,
		Status:         models.RunStatusSucceeded,
		ScheduledAfter: &since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count recent succeeded runs: %w", err)
	}

	failed, err := c.persistence.Runs().Count(ctx, persistence.RunFilter{
		ScheduleID:     scheduleID,
		Status:         models.RunStatusFailed,
		ScheduledAfter: &since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count recent failed runs: %w", err)
	}

	if succeeded+failed > 0 {
		summary.SuccessRate24h = float64(succeeded) / float64(succeeded+failed)
	}

	summary.AvgLatencyMs24h, err = c.persistence.Attempts().AverageLatencyMs(ctx, scheduleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to average attempt latency: %w", err)
	}

	summary.ErrorBreakdown, err = c.persistence.Attempts().ErrorBreakdown(ctx, scheduleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to break down attempt errors: %w", err)
	}

	if scheduleID == "" {
		summary.SchedulesByState, err = c.schedulesByStatus(ctx)
		if err != nil {
			return nil, err
		}
	}

	return summary, nil
}

func (c *Collector) schedulesByStatus(ctx context.Context) (map[models.ScheduleStatus]int, error) {
	schedules, err := c.persistence.Schedules().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	byStatus := make(map[models.ScheduleStatus]int)
	for _, schedule := range schedules {
		byStatus[schedule.Status]++
	}

	return byStatus, nil
}
