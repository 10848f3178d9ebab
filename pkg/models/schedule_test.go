package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestSchedule_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{
			name: "valid interval schedule",
			schedule: Schedule{
				Name:            "every minute",
				TargetID:        "target-1",
				Type:            ScheduleTypeInterval,
				IntervalSeconds: 60,
			},
			wantErr: false,
		},
		{
			name: "valid cron schedule",
			schedule: Schedule{
				Name:           "five past",
				TargetID:       "target-1",
				Type:           ScheduleTypeCron,
				CronExpression: "*/5 * * * *",
			},
			wantErr: false,
		},
		{
			name: "interval schedule without interval",
			schedule: Schedule{
				Name:     "bad",
				TargetID: "target-1",
				Type:     ScheduleTypeInterval,
			},
			wantErr: true,
		},
		{
			name: "interval schedule with cron expression",
			schedule: Schedule{
				Name:            "bad",
				TargetID:        "target-1",
				Type:            ScheduleTypeInterval,
				IntervalSeconds: 60,
				CronExpression:  "* * * * *",
			},
			wantErr: true,
		},
		{
			name: "cron schedule without expression",
			schedule: Schedule{
				Name:     "bad",
				TargetID: "target-1",
				Type:     ScheduleTypeCron,
			},
			wantErr: true,
		},
		{
			name: "cron schedule with six fields",
			schedule: Schedule{
				Name:           "bad",
				TargetID:       "target-1",
				Type:           ScheduleTypeCron,
				CronExpression: "0 */5 * * * *",
			},
			wantErr: true,
		},
		{
			name: "both duration and max runs",
			schedule: Schedule{
				Name:            "bad",
				TargetID:        "target-1",
				Type:            ScheduleTypeInterval,
				IntervalSeconds: 60,
				DurationSeconds: intPtr(3600),
				MaxRuns:         intPtr(10),
			},
			wantErr: true,
		},
		{
			name: "negative duration",
			schedule: Schedule{
				Name:            "bad",
				TargetID:        "target-1",
				Type:            ScheduleTypeInterval,
				IntervalSeconds: 60,
				DurationSeconds: intPtr(-1),
			},
			wantErr: true,
		},
		{
			name: "zero max runs",
			schedule: Schedule{
				Name:            "bad",
				TargetID:        "target-1",
				Type:            ScheduleTypeInterval,
				IntervalSeconds: 60,
				MaxRuns:         intPtr(0),
			},
			wantErr: true,
		},
		{
			name: "unknown schedule type",
			schedule: Schedule{
				Name:     "bad",
				TargetID: "target-1",
				Type:     ScheduleType("hourly"),
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schedule.Validate()

			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedule_WindowEnd(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	unbounded := Schedule{StartAt: start}
	assert.Nil(t, unbounded.WindowEnd())

	bounded := Schedule{StartAt: start, DurationSeconds: intPtr(3600)}
	end := bounded.WindowEnd()
	require.NotNil(t, end)
	assert.Equal(t, start.Add(time.Hour), *end)
}

func TestSchedule_WindowClosedAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("duration window", func(t *testing.T) {
		schedule := Schedule{StartAt: start, DurationSeconds: intPtr(600)}

		assert.False(t, schedule.WindowClosedAt(start.Add(5*time.Minute)))
		// A firing exactly at the window end is still allowed.
		assert.False(t, schedule.WindowClosedAt(start.Add(10*time.Minute)))
		assert.True(t, schedule.WindowClosedAt(start.Add(10*time.Minute+time.Second)))
	})

	t.Run("max runs", func(t *testing.T) {
		schedule := Schedule{StartAt: start, MaxRuns: intPtr(3)}

		schedule.RunsCount = 2
		assert.False(t, schedule.WindowClosedAt(start))

		schedule.RunsCount = 3
		assert.True(t, schedule.WindowClosedAt(start))
	})

	t.Run("unbounded", func(t *testing.T) {
		schedule := Schedule{StartAt: start}

		assert.False(t, schedule.WindowClosedAt(start.Add(100*24*time.Hour)))
	})
}
