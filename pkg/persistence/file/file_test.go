package file

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

func newTestPersistence(t *testing.T) (*Persistence, *clock.Clock) {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	clk := clock.NewWith(clockwork.NewRealClock(), loc)

	return NewPersistence(t.TempDir(), clk), clk
}

func saveTarget(t *testing.T, p *Persistence, id string) *models.Target {
	t.Helper()

	target := &models.Target{
		ID:             id,
		Name:           "target " + id,
		URL:            "https://example.com/hooks",
		Method:         "POST",
		Headers:        map[string]string{"Authorization": "Bearer token"},
		TimeoutSeconds: 30,
	}

	require.NoError(t, p.Targets().Save(t.Context(), target))

	return target
}

func saveSchedule(t *testing.T, p *Persistence, id, targetID string) *models.Schedule {
	t.Helper()

	schedule := &models.Schedule{
		ID:              id,
		Name:            "schedule " + id,
		TargetID:        targetID,
		Type:            models.ScheduleTypeInterval,
		IntervalSeconds: 60,
		StartAt:         time.Now(),
		Status:          models.ScheduleStatusActive,
	}

	require.NoError(t, p.Schedules().Save(t.Context(), schedule))

	return schedule
}

func createRun(t *testing.T, p *Persistence, id, scheduleID, targetID string, at time.Time) *models.Run {
	t.Helper()

	run := models.NewRun(scheduleID, targetID, at)
	run.ID = id

	require.NoError(t, p.Runs().Create(t.Context(), run))

	return run
}

func TestTargetRepository_CRUD(t *testing.T) {
	p, _ := newTestPersistence(t)

	target := saveTarget(t, p, "t1")
	assert.False(t, target.CreatedAt.IsZero())

	fetched, err := p.Targets().GetByID(t.Context(), "t1")
	require.NoError(t, err)
	assert.Equal(t, target.URL, fetched.URL)
	assert.Equal(t, "Bearer token", fetched.Headers["Authorization"])

	_, err = p.Targets().GetByID(t.Context(), "missing")
	assert.ErrorIs(t, err, persistence.ErrTargetNotFound)
	assert.True(t, persistence.IsTargetNotFound(err))

	all, err := p.Targets().GetAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, p.Targets().Delete(t.Context(), "t1"))

	_, err = p.Targets().GetByID(t.Context(), "t1")
	assert.ErrorIs(t, err, persistence.ErrTargetNotFound)
}

func TestScheduleRepository_ListActive(t *testing.T) {
	p, _ := newTestPersistence(t)

	saveTarget(t, p, "t1")

	active := saveSchedule(t, p, "s1", "t1")

	paused := saveSchedule(t, p, "s2", "t1")
	paused.Status = models.ScheduleStatusPaused
	require.NoError(t, p.Schedules().Save(t.Context(), paused))

	completed := saveSchedule(t, p, "s3", "t1")
	completed.Status = models.ScheduleStatusCompleted
	require.NoError(t, p.Schedules().Save(t.Context(), completed))

	actives, err := p.Schedules().ListActive(t.Context())
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, active.ID, actives[0].ID)

	byTarget, err := p.Schedules().ListByTarget(t.Context(), "t1")
	require.NoError(t, err)
	assert.Len(t, byTarget, 3)
}

func TestRunRepository_IdempotencyKey(t *testing.T) {
	p, _ := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")

	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	createRun(t, p, "r1", "s1", "t1", at)

	// Same schedule and second collides, regardless of sub-second jitter.
	dup := models.NewRun("s1", "t1", at.Add(300*time.Millisecond))
	dup.ID = "r2"
	err := p.Runs().Create(t.Context(), dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrDuplicateRun)
	assert.True(t, persistence.IsDuplicateRun(err))

	// The losing insert left nothing behind.
	count, err := p.Runs().Count(t.Context(), persistence.RunFilter{ScheduleID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A different second is a different firing.
	next := models.NewRun("s1", "t1", at.Add(time.Minute))
	next.ID = "r3"
	require.NoError(t, p.Runs().Create(t.Context(), next))
}

func TestRunRepository_UpdateStatus(t *testing.T) {
	p, clk := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")

	run := createRun(t, p, "r1", "s1", "t1", time.Now())

	started := clk.Now()
	err := p.Runs().UpdateStatus(t.Context(), run.ID, models.RunStatusRunning, persistence.RunStatusUpdate{
		StartedAt: &started,
	})
	require.NoError(t, err)

	completed := clk.Now()
	attempts := 2
	finalErr := "connect: connection refused"
	err = p.Runs().UpdateStatus(t.Context(), run.ID, models.RunStatusFailed, persistence.RunStatusUpdate{
		CompletedAt:  &completed,
		AttemptCount: &attempts,
		FinalError:   &finalErr,
	})
	require.NoError(t, err)

	fetched, err := p.Runs().GetByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, fetched.Status)
	assert.Equal(t, 2, fetched.AttemptCount)
	require.NotNil(t, fetched.FinalError)
	assert.Equal(t, finalErr, *fetched.FinalError)

	// Terminal runs are immutable.
	err = p.Runs().UpdateStatus(t.Context(), run.ID, models.RunStatusSucceeded, persistence.RunStatusUpdate{})
	assert.ErrorIs(t, err, persistence.ErrInvalidRunTransition)

	err = p.Runs().UpdateStatus(t.Context(), "missing", models.RunStatusRunning, persistence.RunStatusUpdate{})
	assert.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestRunRepository_ListFilters(t *testing.T) {
	p, _ := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")
	saveSchedule(t, p, "s2", "t1")

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	createRun(t, p, "r1", "s1", "t1", base)
	createRun(t, p, "r2", "s1", "t1", base.Add(time.Minute))
	createRun(t, p, "r3", "s2", "t1", base.Add(2*time.Minute))

	bySchedule, err := p.Runs().List(t.Context(), persistence.RunFilter{ScheduleID: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySchedule, 2)

	// Newest scheduled_at first.
	all, err := p.Runs().List(t.Context(), persistence.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)
	assert.Equal(t, "r1", all[2].ID)

	after := base.Add(30 * time.Second)
	later, err := p.Runs().List(t.Context(), persistence.RunFilter{ScheduledAfter: &after})
	require.NoError(t, err)
	assert.Len(t, later, 2)

	paged, err := p.Runs().List(t.Context(), persistence.RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "r2", paged[0].ID)
}

func TestRunRepository_CountInFlightAndBulkFail(t *testing.T) {
	p, clk := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	pending := createRun(t, p, "r1", "s1", "t1", base)
	running := createRun(t, p, "r2", "s1", "t1", base.Add(time.Minute))
	done := createRun(t, p, "r3", "s1", "t1", base.Add(2*time.Minute))

	started := clk.Now()
	require.NoError(t, p.Runs().UpdateStatus(t.Context(), running.ID, models.RunStatusRunning, persistence.RunStatusUpdate{StartedAt: &started}))

	completed := clk.Now()
	require.NoError(t, p.Runs().UpdateStatus(t.Context(), done.ID, models.RunStatusSucceeded, persistence.RunStatusUpdate{CompletedAt: &completed}))

	inFlight, err := p.Runs().CountInFlight(t.Context(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, inFlight)

	failed, err := p.Runs().BulkFailInFlight(t.Context(), "orphaned by server restart", clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, failed)

	for _, id := range []string{pending.ID, running.ID} {
		run, err := p.Runs().GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed, run.Status)
		require.NotNil(t, run.FinalError)
		assert.Equal(t, "orphaned by server restart", *run.FinalError)
	}

	// Terminal runs were left alone, and a second pass finds nothing.
	run, err := p.Runs().GetByID(t.Context(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)

	failed, err = p.Runs().BulkFailInFlight(t.Context(), "orphaned by server restart", clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, failed)
}

func TestAttemptRepository_AppendAndAggregates(t *testing.T) {
	p, clk := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")
	run := createRun(t, p, "r1", "s1", "t1", time.Now())

	now := clk.Now()
	status := 500

	for i := 1; i <= 2; i++ {
		attempt := &models.Attempt{
			ID:             "a" + string(rune('0'+i)),
			RunID:          run.ID,
			AttemptNumber:  i,
			RequestURL:     "https://example.com/hooks",
			RequestMethod:  "POST",
			ResponseStatus: &status,
			ErrorClass:     models.ErrorClassHTTP5xx,
			DurationMs:     int64(100 * i),
			StartedAt:      now,
			CompletedAt:    now,
		}
		require.NoError(t, p.Attempts().Append(t.Context(), attempt))
	}

	attempts, err := p.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.Equal(t, 2, attempts[1].AttemptNumber)

	breakdown, err := p.Attempts().ErrorBreakdown(t.Context(), "", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, breakdown[models.ErrorClassHTTP5xx])

	scoped, err := p.Attempts().ErrorBreakdown(t.Context(), "s1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, scoped[models.ErrorClassHTTP5xx])

	avg, err := p.Attempts().AverageLatencyMs(t.Context(), "", time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 150.0, avg, 0.001)
}

func TestCascadeDeletes(t *testing.T) {
	p, clk := newTestPersistence(t)

	saveTarget(t, p, "t1")
	saveSchedule(t, p, "s1", "t1")
	run := createRun(t, p, "r1", "s1", "t1", time.Now())

	attempt := &models.Attempt{
		ID:            "a1",
		RunID:         run.ID,
		AttemptNumber: 1,
		RequestURL:    "https://example.com/hooks",
		RequestMethod: "POST",
		ErrorClass:    models.ErrorClassConnection,
		StartedAt:     clk.Now(),
		CompletedAt:   clk.Now(),
	}
	require.NoError(t, p.Attempts().Append(t.Context(), attempt))

	t.Run("schedule delete removes runs and attempts", func(t *testing.T) {
		require.NoError(t, p.Schedules().Delete(t.Context(), "s1"))

		_, err := p.Runs().GetByID(t.Context(), run.ID)
		assert.ErrorIs(t, err, persistence.ErrRunNotFound)

		attempts, err := p.Attempts().ListByRun(t.Context(), run.ID)
		require.NoError(t, err)
		assert.Empty(t, attempts)
	})

	t.Run("target delete removes schedules transitively", func(t *testing.T) {
		saveSchedule(t, p, "s2", "t1")
		run2 := createRun(t, p, "r2", "s2", "t1", time.Now())

		require.NoError(t, p.Targets().Delete(t.Context(), "t1"))

		_, err := p.Schedules().GetByID(t.Context(), "s2")
		assert.ErrorIs(t, err, persistence.ErrScheduleNotFound)

		_, err = p.Runs().GetByID(t.Context(), run2.ID)
		assert.ErrorIs(t, err, persistence.ErrRunNotFound)
	})
}
