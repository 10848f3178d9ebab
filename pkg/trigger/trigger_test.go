package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/strobe/pkg/models"
)

func intPtr(v int) *int { return &v }

func TestTrigger_NextFire_Interval(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	trg := New(loc)
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)

	schedule := &models.Schedule{
		ID:              "sched-1",
		Type:            models.ScheduleTypeInterval,
		IntervalSeconds: 600,
		StartAt:         start,
	}

	testCases := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before start fires at start", start.Add(-time.Hour), start},
		{"at start fires one interval later", start, start.Add(10 * time.Minute)},
		{"mid interval", start.Add(4 * time.Minute), start.Add(10 * time.Minute)},
		{"exactly on an instant fires the next one", start.Add(10 * time.Minute), start.Add(20 * time.Minute)},
		{"far in the future stays on the grid", start.Add(95 * time.Minute), start.Add(100 * time.Minute)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := trg.NextFire(schedule, tc.after)
			require.NoError(t, err)
			assert.True(t, next.Equal(tc.want), "want %s, got %s", tc.want, next)
		})
	}
}

func TestTrigger_NextFire_Cron(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	trg := New(loc)

	// Created at 12:02, so the first match is 12:05, not 12:00.
	start := time.Date(2025, 3, 10, 12, 2, 0, 0, loc)
	schedule := &models.Schedule{
		ID:             "sched-2",
		Type:           models.ScheduleTypeCron,
		CronExpression: "*/5 * * * *",
		StartAt:        start,
	}

	next, err := trg.NextFire(schedule, start)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2025, 3, 10, 12, 5, 0, 0, loc)))

	// A reference before start_at still never yields instants before start.
	next, err = trg.NextFire(schedule, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2025, 3, 10, 12, 5, 0, 0, loc)))
}

func TestTrigger_NextFire_WindowClosed(t *testing.T) {
	loc := time.UTC
	trg := New(loc)
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, loc)

	t.Run("max runs reached", func(t *testing.T) {
		schedule := &models.Schedule{
			Type:            models.ScheduleTypeInterval,
			IntervalSeconds: 60,
			StartAt:         start,
			MaxRuns:         intPtr(3),
			RunsCount:       3,
		}

		_, err := trg.NextFire(schedule, start.Add(3*time.Minute))
		assert.ErrorIs(t, err, ErrWindowClosed)
	})

	t.Run("next instant past duration window", func(t *testing.T) {
		schedule := &models.Schedule{
			Type:            models.ScheduleTypeInterval,
			IntervalSeconds: 600,
			StartAt:         start,
			DurationSeconds: intPtr(900),
		}

		// 12:10 is inside the 15-minute window.
		next, err := trg.NextFire(schedule, start.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, next.Equal(start.Add(10*time.Minute)))

		// 12:20 falls past it.
		_, err = trg.NextFire(schedule, start.Add(10*time.Minute))
		assert.ErrorIs(t, err, ErrWindowClosed)
	})

	t.Run("firing exactly at window end allowed", func(t *testing.T) {
		schedule := &models.Schedule{
			Type:            models.ScheduleTypeInterval,
			IntervalSeconds: 600,
			StartAt:         start,
			DurationSeconds: intPtr(600),
		}

		next, err := trg.NextFire(schedule, start.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, next.Equal(start.Add(10*time.Minute)))
	})
}

func TestTrigger_NextFire_InvalidRule(t *testing.T) {
	trg := New(time.UTC)

	_, err := trg.NextFire(&models.Schedule{
		Type:           models.ScheduleTypeCron,
		CronExpression: "not a cron",
		StartAt:        time.Now(),
	}, time.Now())
	require.Error(t, err)

	_, err = trg.NextFire(&models.Schedule{Type: models.ScheduleType("hourly")}, time.Now())
	require.Error(t, err)
}
