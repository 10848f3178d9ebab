// Package scheduler owns the in-memory map of armed timers and drives
// firings: it converts schedule rules into runs at the right wall-clock
// moment and hands them to the executor. Durable state stays in the store;
// the timer map is rebuilt from it on startup, so there is no dual-write
// problem to solve.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/eventbus"
	"github.com/dukex/strobe/pkg/events"
	"github.com/dukex/strobe/pkg/log"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/otelhelper"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/trigger"
)

// Dispatcher consumes runs the scheduler fires. Implemented by the executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *models.Run, target *models.Target)
}

// Config holds the scheduler's timing settings.
type Config struct {
	// MisfireGrace is how far past its fire time a firing may still run.
	// Later than that it is dropped, not reattempted.
	MisfireGrace time.Duration

	// SweepInterval is how often active schedules are checked for expired
	// duration windows, so windows close even with no pending firing.
	SweepInterval time.Duration
}

// armedTimer is one entry of the timer map. fireAt identifies the arming: a
// firing whose instant no longer matches the map entry was disarmed or
// rearmed underneath it and must not act.
type armedTimer struct {
	timer  clockwork.Timer
	fireAt time.Time
}

// Scheduler drives schedule firings. Lifecycle notifications arrive from
// the service layer; the timer map is only touched under the mutex.
type Scheduler struct {
	persistence persistence.Persistence
	trigger     *trigger.Trigger
	clock       *clock.Clock
	dispatcher  Dispatcher
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	config      Config

	mu      sync.Mutex
	timers  map[string]*armedTimer
	stopped bool

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// New creates a scheduler. Call Recover before arming anything, then Start.
func New(p persistence.Persistence, trg *trigger.Trigger, clk *clock.Clock, dispatcher Dispatcher, bus eventbus.EventPublisher, tracer trace.Tracer, config Config) *Scheduler {
	if config.MisfireGrace <= 0 {
		config.MisfireGrace = 60 * time.Second
	}

	if config.SweepInterval <= 0 {
		config.SweepInterval = 60 * time.Second
	}

	return &Scheduler{
		persistence: p,
		trigger:     trg,
		clock:       clk,
		dispatcher:  dispatcher,
		eventBus:    bus,
		tracer:      tracer,
		logger:      log.WithModule("scheduler"),
		config:      config,
		timers:      make(map[string]*armedTimer),
		sweepStop:   make(chan struct{}),
	}
}

// Start launches the periodic window-expiration sweep.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
}

// Stop disarms every timer and stops the sweep. In-flight executor work is
// not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.stopped = true

	for id, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, id)
	}

	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

// ArmedCount reports how many schedules currently hold a timer.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// OnScheduleCreated arms a freshly created schedule when it is active and
// its window is open.
func (s *Scheduler) OnScheduleCreated(ctx context.Context, schedule *models.Schedule) {
	if schedule.Status != models.ScheduleStatusActive {
		return
	}

	s.arm(ctx, schedule)
}

// OnScheduleUpdated disarms and rearms under the new settings. An in-flight
// run keeps the settings it was fired with.
func (s *Scheduler) OnScheduleUpdated(ctx context.Context, schedule *models.Schedule) {
	s.disarm(schedule.ID)

	if schedule.Status == models.ScheduleStatusActive {
		s.arm(ctx, schedule)
	}
}

// OnSchedulePaused disarms future firings. It does not cancel in-flight
// executor work.
func (s *Scheduler) OnSchedulePaused(_ context.Context, id string) {
	s.disarm(id)
}

// OnScheduleResumed rearms from the persisted state. A schedule whose
// window closed while paused is marked completed instead.
func (s *Scheduler) OnScheduleResumed(ctx context.Context, schedule *models.Schedule) {
	s.arm(ctx, schedule)
}

// OnScheduleDeleted drops the schedule's timer synchronously.
func (s *Scheduler) OnScheduleDeleted(_ context.Context, id string) {
	s.disarm(id)
}

// OnTargetDeleted disarms every schedule referencing the target. Called
// before the cascading delete commits, so no firing can hit a dangling row.
func (s *Scheduler) OnTargetDeleted(ctx context.Context, targetID string) {
	schedules, err := s.persistence.Schedules().ListByTarget(ctx, targetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list schedules for deleted target", "target_id", targetID, "error", err)

		return
	}

	for _, schedule := range schedules {
		s.disarm(schedule.ID)
	}
}

// arm computes the next firing instant and installs a single-shot timer for
// it. A closed window marks the schedule completed instead.
func (s *Scheduler) arm(ctx context.Context, schedule *models.Schedule) {
	now := s.clock.Now()

	// A schedule that has never fired should fire at start_at itself, not
	// at the occurrence after it; the instants a trigger returns are
	// strictly after the reference. Nudging the reference just below
	// start_at covers the create-then-arm gap, bounded by the misfire
	// grace so long-past start times are not replayed.
	ref := now
	if schedule.RunsCount == 0 && schedule.StartAt.Before(now) && now.Sub(schedule.StartAt) <= s.config.MisfireGrace {
		ref = schedule.StartAt.Add(-time.Nanosecond)
	}

	fireAt, err := s.trigger.NextFire(schedule, ref)
	if err != nil {
		if errors.Is(err, trigger.ErrWindowClosed) {
			s.complete(ctx, schedule, "window closed")

			return
		}

		s.logger.ErrorContext(ctx, "Failed to compute next firing", "schedule_id", schedule.ID, "error", err)

		return
	}

	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()

		return
	}

	if existing, ok := s.timers[schedule.ID]; ok {
		existing.timer.Stop()
	}

	id := schedule.ID
	timer := s.clock.AfterFunc(s.clock.Until(fireAt), func() {
		s.fire(id, fireAt)
	})
	s.timers[id] = &armedTimer{timer: timer, fireAt: fireAt}
	s.mu.Unlock()

	schedule.NextRunAt = &fireAt

	if err := s.saveSchedule(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist next run time", "schedule_id", schedule.ID, "error", err)
	}

	s.logger.DebugContext(ctx, "Schedule armed", "schedule_id", schedule.ID, "fire_at", fireAt)
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if armed, ok := s.timers[id]; ok {
		armed.timer.Stop()
		delete(s.timers, id)
	}
}

// fire runs in the timer goroutine when a schedule's instant arrives:
// window gate, idempotent run insert, single-inflight gate, rearm,
// dispatch.
func (s *Scheduler) fire(scheduleID string, fireAt time.Time) {
	ctx := context.Background()

	s.mu.Lock()

	armed, ok := s.timers[scheduleID]
	if !ok || !armed.fireAt.Equal(fireAt) {
		// Disarmed or rearmed since this timer was installed.
		s.mu.Unlock()

		return
	}

	delete(s.timers, scheduleID)
	s.mu.Unlock()

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "schedule.fire",
		attribute.String(otelhelper.ScheduleIDKey, scheduleID),
		attribute.String(otelhelper.FireAtKey, fireAt.Format(time.RFC3339)),
	)
	defer span.End()

	schedule, err := s.persistence.Schedules().GetByID(ctx, scheduleID)
	if err != nil {
		if !persistence.IsScheduleNotFound(err) {
			s.logger.ErrorContext(ctx, "Failed to load schedule for firing", "schedule_id", scheduleID, "error", err)
			otelhelper.SetError(span, err)
		}

		return
	}

	if schedule.Status != models.ScheduleStatusActive {
		return
	}

	now := s.clock.Now()
	if now.Sub(fireAt) > s.config.MisfireGrace {
		s.logger.WarnContext(ctx, "Dropping misfire past grace",
			"schedule_id", scheduleID, "fire_at", fireAt, "grace", s.config.MisfireGrace)
		s.rearm(ctx, schedule, now)

		return
	}

	if schedule.WindowClosedAt(fireAt) {
		s.complete(ctx, schedule, "window closed")

		return
	}

	run := models.NewRun(schedule.ID, schedule.TargetID, fireAt)
	run.ID = uuid.Must(uuid.NewV7()).String()

	if err := s.createRun(ctx, run); err != nil {
		if persistence.IsDuplicateRun(err) {
			// Already handled, possibly by a previous incarnation of this
			// process. Absorb silently and keep the schedule going.
			s.logger.DebugContext(ctx, "Duplicate firing skipped", "schedule_id", scheduleID, "idempotency_key", run.IdempotencyKey)
			s.rearm(ctx, schedule, s.maxTime(fireAt, now))

			return
		}

		s.logger.ErrorContext(ctx, "Store unavailable, halting scheduler", "schedule_id", scheduleID, "error", err)
		otelhelper.SetError(span, err)
		s.Stop()

		return
	}

	schedule.RunsCount++
	schedule.LastRunAt = &fireAt

	// Rearm before dispatching: the next firing must not wait on the HTTP
	// work. Coalesce piled-up misfires by rearming from now when late.
	s.rearm(ctx, schedule, s.maxTime(fireAt, now))

	fired := events.RunFired{
		BaseEvent:   events.NewBaseEvent(events.RunFiredEvent, schedule.ID, now),
		RunID:       run.ID,
		TargetID:    run.TargetID,
		ScheduledAt: run.ScheduledAt,
	}
	if err := s.eventBus.Publish(ctx, schedule.ID, fired); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish run fired event", "run_id", run.ID, "error", err)
	}

	s.dispatch(ctx, schedule, run)
}

// dispatch enforces the single-inflight gate and hands the run to the
// executor.
func (s *Scheduler) dispatch(ctx context.Context, schedule *models.Schedule, run *models.Run) {
	inFlight, err := s.persistence.Runs().CountInFlight(ctx, schedule.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to count in-flight runs", "schedule_id", schedule.ID, "error", err)

		inFlight = 1
	}

	// The freshly inserted pending run counts as one. More than that means
	// a previous run is still in flight: the row stays as evidence of the
	// fire but is closed out immediately so the single-inflight invariant
	// holds.
	if inFlight > 1 {
		s.logger.InfoContext(ctx, "Skipping dispatch, previous run still in flight",
			"schedule_id", schedule.ID, "run_id", run.ID)

		completedAt := s.clock.Now()
		skipped := "skipped: previous run still in flight"

		err := s.persistence.Runs().UpdateStatus(ctx, run.ID, models.RunStatusFailed, persistence.RunStatusUpdate{
			CompletedAt: &completedAt,
			FinalError:  &skipped,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close skipped run", "run_id", run.ID, "error", err)
		}

		return
	}

	target, err := s.persistence.Targets().GetByID(ctx, run.TargetID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load target for run", "run_id", run.ID, "target_id", run.TargetID, "error", err)

		completedAt := s.clock.Now()
		message := "target no longer exists"

		if err := s.persistence.Runs().UpdateStatus(ctx, run.ID, models.RunStatusFailed, persistence.RunStatusUpdate{
			CompletedAt: &completedAt,
			FinalError:  &message,
		}); err != nil {
			s.logger.ErrorContext(ctx, "Failed to fail orphaned run", "run_id", run.ID, "error", err)
		}

		return
	}

	s.logger.InfoContext(ctx, "Run fired", "schedule_id", schedule.ID, "run_id", run.ID, "scheduled_at", run.ScheduledAt)
	s.dispatcher.Dispatch(ctx, run, target)
}

// rearm computes the firing after the reference instant and installs a new
// timer, persisting the advisory next_run_at. A closed window marks the
// schedule completed.
func (s *Scheduler) rearm(ctx context.Context, schedule *models.Schedule, after time.Time) {
	fireAt, err := s.trigger.NextFire(schedule, after)
	if err != nil {
		if errors.Is(err, trigger.ErrWindowClosed) {
			s.complete(ctx, schedule, "window closed")

			return
		}

		s.logger.ErrorContext(ctx, "Failed to compute next firing", "schedule_id", schedule.ID, "error", err)

		return
	}

	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()

		return
	}

	id := schedule.ID
	timer := s.clock.AfterFunc(s.clock.Until(fireAt), func() {
		s.fire(id, fireAt)
	})
	s.timers[id] = &armedTimer{timer: timer, fireAt: fireAt}
	s.mu.Unlock()

	schedule.NextRunAt = &fireAt

	if err := s.saveSchedule(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist next run time", "schedule_id", schedule.ID, "error", err)
	}
}

// complete transitions a schedule to its terminal status and drops its
// timer. Window exhaustion is not an error.
func (s *Scheduler) complete(ctx context.Context, schedule *models.Schedule, reason string) {
	s.disarm(schedule.ID)

	schedule.Status = models.ScheduleStatusCompleted
	schedule.NextRunAt = nil

	if err := s.saveSchedule(ctx, schedule); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist completed schedule", "schedule_id", schedule.ID, "error", err)

		return
	}

	completed := events.ScheduleCompleted{
		BaseEvent: events.NewBaseEvent(events.ScheduleCompletedEvent, schedule.ID, s.clock.Now()),
		Reason:    reason,
	}
	if err := s.eventBus.Publish(ctx, schedule.ID, completed); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish schedule completed event", "schedule_id", schedule.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "Schedule completed", "schedule_id", schedule.ID, "reason", reason)
}

// sweepLoop periodically closes duration windows that elapsed with no
// firing pending, so a paused-then-forgotten or long-interval schedule
// still completes on time.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.Chan():
			s.sweepExpiredWindows(ctx)
		}
	}
}

func (s *Scheduler) sweepExpiredWindows(ctx context.Context) {
	schedules, err := s.persistence.Schedules().ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list active schedules for sweep", "error", err)

		return
	}

	now := s.clock.Now()

	for _, schedule := range schedules {
		end := schedule.WindowEnd()
		maxRunsHit := schedule.MaxRuns != nil && schedule.RunsCount >= *schedule.MaxRuns

		if (end != nil && now.After(*end)) || maxRunsHit {
			s.complete(ctx, schedule, "window closed")
		}
	}
}

// createRun inserts the run with a short bounded retry on infrastructure
// failure. Duplicate-key conflicts return immediately; they are an answer,
// not a failure.
func (s *Scheduler) createRun(ctx context.Context, run *models.Run) error {
	return s.withRetry(ctx, func() error {
		err := s.persistence.Runs().Create(ctx, run)
		if err != nil && persistence.IsDuplicateRun(err) {
			return err
		}

		return err
	})
}

func (s *Scheduler) saveSchedule(ctx context.Context, schedule *models.Schedule) error {
	return s.withRetry(ctx, func() error {
		return s.persistence.Schedules().Save(ctx, schedule)
	})
}

// withRetry retries a store write a few times with a short backoff before
// giving up.
func (s *Scheduler) withRetry(ctx context.Context, fn func() error) error {
	const tries = 3

	var err error

	for i := 1; i <= tries; i++ {
		err = fn()
		if err == nil || persistence.IsDuplicateRun(err) {
			return err
		}

		if i < tries {
			s.logger.WarnContext(ctx, "Store write failed, retrying", "try", i, "error", err)
			s.clock.Sleep(time.Duration(i) * 250 * time.Millisecond)
		}
	}

	return err
}

func (s *Scheduler) maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}

	return a
}
