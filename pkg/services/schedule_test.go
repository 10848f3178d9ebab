package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/persistence/file"
)

type scheduleFixture struct {
	service  *Schedule
	notifier *recordingNotifier
	target   *models.Target
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()

	clk := newTestClock(t)
	p := file.NewPersistence(t.TempDir(), clk)
	notifier := &recordingNotifier{}

	target, err := NewTarget(p, notifier, clk, TargetLimits{}).Create(t.Context(), &models.Target{
		Name:   "orders",
		URL:    "https://example.com/hooks/orders",
		Method: "POST",
	})
	require.NoError(t, err)

	return &scheduleFixture{
		service:  NewSchedule(p, notifier, clk),
		notifier: notifier,
		target:   target,
	}
}

func (f *scheduleFixture) createInterval(t *testing.T) *models.Schedule {
	t.Helper()

	created, err := f.service.Create(t.Context(), &models.Schedule{
		Name:            "every-minute",
		TargetID:        f.target.ID,
		Type:            models.ScheduleTypeInterval,
		IntervalSeconds: 60,
	})
	require.NoError(t, err)

	return created
}

func TestSchedule_Create(t *testing.T) {
	f := newScheduleFixture(t)

	created := f.createInterval(t)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ScheduleStatusActive, created.Status)
	assert.False(t, created.StartAt.IsZero(), "omitted start_at defaults to now")
	assert.Equal(t, []string{created.ID}, f.notifier.created)
}

func TestSchedule_Create_Validation(t *testing.T) {
	f := newScheduleFixture(t)

	testCases := []struct {
		name     string
		schedule models.Schedule
		want     error
	}{
		{
			name: "interval without seconds",
			schedule: models.Schedule{
				Name:     "bad",
				TargetID: f.target.ID,
				Type:     models.ScheduleTypeInterval,
			},
			want: models.ErrInvalidSchedule,
		},
		{
			name: "six field cron",
			schedule: models.Schedule{
				Name:           "bad",
				TargetID:       f.target.ID,
				Type:           models.ScheduleTypeCron,
				CronExpression: "0 */5 * * * *",
			},
			want: models.ErrInvalidSchedule,
		},
		{
			name: "unknown target",
			schedule: models.Schedule{
				Name:            "bad",
				TargetID:        "missing",
				Type:            models.ScheduleTypeInterval,
				IntervalSeconds: 60,
			},
			want: persistence.ErrTargetNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Create(t.Context(), &tc.schedule)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			all, listErr := f.service.List(t.Context())
			require.NoError(t, listErr)
			assert.Empty(t, all)
			assert.Empty(t, f.notifier.created)
		})
	}
}

func TestSchedule_Update(t *testing.T) {
	f := newScheduleFixture(t)
	created := f.createInterval(t)

	created.IntervalSeconds = 300
	updated, err := f.service.Update(t.Context(), created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, 300, updated.IntervalSeconds)
	assert.Equal(t, []string{created.ID}, f.notifier.updated)
}

func TestSchedule_Update_CompletedIsImmutable(t *testing.T) {
	f := newScheduleFixture(t)
	created := f.createInterval(t)

	created.Status = models.ScheduleStatusCompleted
	require.NoError(t, f.service.persistence.Schedules().Save(t.Context(), created))

	created.IntervalSeconds = 300
	_, err := f.service.Update(t.Context(), created.ID, created)
	assert.ErrorIs(t, err, ErrScheduleCompleted)
	assert.True(t, IsConflictError(err))
}

func TestSchedule_PauseResume(t *testing.T) {
	f := newScheduleFixture(t)
	created := f.createInterval(t)

	paused, err := f.service.Pause(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPaused, paused.Status)
	assert.Nil(t, paused.NextRunAt)
	assert.Equal(t, []string{created.ID}, f.notifier.paused)

	// Pausing anything but an active schedule is rejected.
	_, err = f.service.Pause(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrScheduleNotActive)
	assert.True(t, IsValidationError(err))

	resumed, err := f.service.Resume(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusActive, resumed.Status)
	assert.Equal(t, []string{created.ID}, f.notifier.resumed)

	_, err = f.service.Resume(t.Context(), created.ID)
	assert.ErrorIs(t, err, ErrScheduleNotPaused)
	assert.True(t, IsValidationError(err))
}

func TestSchedule_Delete(t *testing.T) {
	f := newScheduleFixture(t)
	created := f.createInterval(t)

	require.NoError(t, f.service.Delete(t.Context(), created.ID))
	assert.Equal(t, []string{created.ID}, f.notifier.deleted)

	_, err := f.service.FetchByID(t.Context(), created.ID)
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

	err = f.service.Delete(t.Context(), created.ID)
	assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)
}
