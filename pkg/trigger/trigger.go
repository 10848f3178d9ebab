// Package trigger computes firing instants from schedule rules.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukex/strobe/pkg/models"
)

// ErrWindowClosed signals that a schedule's window rules out any further
// firing; the caller marks the schedule completed.
var ErrWindowClosed = errors.New("schedule window closed")

// Trigger is a stateless evaluator of schedule rules. It holds no timers;
// only the zone every instant is computed in.
type Trigger struct {
	loc    *time.Location
	parser cron.Parser
}

// New returns a trigger evaluating rules in the given zone.
func New(loc *time.Location) *Trigger {
	return &Trigger{
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// NextFire returns the next firing instant strictly after the reference
// instant. Interval schedules fire at start_at and then every
// interval_seconds; cron schedules fire at the next expression match after
// max(after, start_at). Returns ErrWindowClosed when max_runs has been
// reached or the computed instant falls past the duration window.
func (t *Trigger) NextFire(schedule *models.Schedule, after time.Time) (time.Time, error) {
	after = after.In(t.loc)
	start := schedule.StartAt.In(t.loc)

	var next time.Time

	switch schedule.Type {
	case models.ScheduleTypeInterval:
		next = t.nextInterval(schedule, start, after)
	case models.ScheduleTypeCron:
		cronSchedule, err := t.parser.Parse(schedule.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse cron expression %q: %w", schedule.CronExpression, err)
		}

		ref := after
		if start.After(ref) {
			ref = start
		}

		next = cronSchedule.Next(ref)
		if next.IsZero() {
			return time.Time{}, ErrWindowClosed
		}
	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", schedule.Type)
	}

	if schedule.WindowClosedAt(next) {
		return time.Time{}, ErrWindowClosed
	}

	return next, nil
}

func (t *Trigger) nextInterval(schedule *models.Schedule, start, after time.Time) time.Time {
	if after.Before(start) {
		return start
	}

	interval := time.Duration(schedule.IntervalSeconds) * time.Second
	elapsed := after.Sub(start)

	// Smallest start + k*interval strictly greater than after.
	k := int64(elapsed/interval) + 1

	return start.Add(time.Duration(k) * interval)
}
