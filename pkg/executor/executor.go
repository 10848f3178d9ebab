// Package executor performs the outbound HTTP calls for fired runs: bounded
// worker pool, retry loop with exponential backoff, error classification and
// a persisted attempt trail. It never raises to its caller; every terminal
// condition is expressed as run and attempt state.
package executor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/eventbus"
	"github.com/dukex/strobe/pkg/events"
	"github.com/dukex/strobe/pkg/log"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/otelhelper"
	"github.com/dukex/strobe/pkg/persistence"
)

const (
	// maxResponseBytes caps stored response bodies at 100 KiB.
	maxResponseBytes = 100 * 1024

	// truncationSuffix marks a stored body that was cut at the cap.
	truncationSuffix = "…[truncated]"

	// maxBackoff bounds the exponential retry delay.
	maxBackoff = 30 * time.Second
)

// Config holds the executor's retry and concurrency settings.
type Config struct {
	// MaxRetries is the number of additional attempts after the first try.
	MaxRetries int

	// RetryDelay is the base of the exponential backoff between attempts.
	RetryDelay time.Duration

	// MaxConcurrent bounds the number of runs in flight at once.
	MaxConcurrent int
}

// Executor consumes fired runs and drives them to a terminal status.
type Executor struct {
	persistence persistence.Persistence
	clock       *clock.Clock
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config
	semaphore   chan struct{}
	wg          sync.WaitGroup
}

// New creates an executor with the given pool size and retry budget.
func New(p persistence.Persistence, clk *clock.Clock, bus eventbus.EventPublisher, tracer trace.Tracer, config Config) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 100
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	return &Executor{
		persistence: p,
		clock:       clk,
		eventBus:    bus,
		logger:      log.WithModule("executor"),
		tracer:      tracer,
		config:      config,
		semaphore:   make(chan struct{}, config.MaxConcurrent),
	}
}

// Dispatch hands a run to the worker pool and returns immediately. The run
// proceeds to a terminal status even if its schedule is paused or deleted
// while the work is in flight.
func (e *Executor) Dispatch(ctx context.Context, run *models.Run, target *models.Target) {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		e.semaphore <- struct{}{}
		defer func() { <-e.semaphore }()

		e.execute(ctx, run, target)
	}()
}

// Shutdown waits for in-flight runs to finish, up to the context deadline.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) execute(ctx context.Context, run *models.Run, target *models.Target) {
	logger := e.logger.With("run_id", run.ID, "schedule_id", run.ScheduleID, "target_id", target.ID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.ScheduleIDKey, run.ScheduleID),
		attribute.String(otelhelper.TargetIDKey, target.ID),
	)
	defer span.End()

	started := e.clock.Now()

	err := e.persistence.Runs().UpdateStatus(ctx, run.ID, models.RunStatusRunning, persistence.RunStatusUpdate{
		StartedAt: &started,
	})
	if err != nil {
		// Another worker or recovery already moved the run; leave it alone.
		logger.WarnContext(ctx, "Run is not startable, skipping", "error", err)
		otelhelper.SetError(span, err)

		return
	}

	totalTries := e.config.MaxRetries + 1

	var (
		finalClass models.ErrorClass
		finalError *string
		tries      int
	)

	for number := 1; number <= totalTries; number++ {
		tries = number
		attempt := e.attempt(ctx, run, target, number)

		if err := e.persistence.Attempts().Append(ctx, attempt); err != nil {
			logger.ErrorContext(ctx, "Failed to persist attempt", "attempt", number, "error", err)
		}

		finalClass = attempt.ErrorClass
		finalError = attempt.ErrorMessage

		if !attempt.ErrorClass.Retriable() || number == totalTries {
			break
		}

		delay := e.backoffDelay(number)
		logger.DebugContext(ctx, "Retrying after backoff",
			"attempt", number, "error_class", attempt.ErrorClass, "delay", delay)
		e.clock.Sleep(delay)
	}

	completed := e.clock.Now()
	status := models.RunStatusSucceeded

	if finalClass != models.ErrorClassNone {
		status = models.RunStatusFailed
	} else {
		finalError = nil
	}

	err = e.persistence.Runs().UpdateStatus(ctx, run.ID, status, persistence.RunStatusUpdate{
		CompletedAt:  &completed,
		AttemptCount: &tries,
		FinalError:   finalError,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist terminal run status", "status", status, "error", err)
		otelhelper.SetError(span, err)
	}

	finished := events.RunFinished{
		BaseEvent:    events.NewBaseEvent(events.RunFinishedEvent, run.ScheduleID, completed),
		RunID:        run.ID,
		TargetID:     target.ID,
		Status:       string(status),
		AttemptCount: tries,
		FinalError:   finalError,
		DurationMs:   completed.Sub(started).Milliseconds(),
	}
	if err := e.eventBus.Publish(ctx, run.ScheduleID, finished); err != nil {
		logger.ErrorContext(ctx, "Failed to publish run finished event", "error", err)
	}

	logger.InfoContext(ctx, "Run finished", "status", status, "attempts", tries)
}

// attempt materializes and performs a single HTTP try. Network failures and
// non-2xx statuses are recorded on the attempt, never returned.
func (e *Executor) attempt(ctx context.Context, run *models.Run, target *models.Target, number int) *models.Attempt {
	attempt := &models.Attempt{
		ID:             uuid.New().String(),
		RunID:          run.ID,
		AttemptNumber:  number,
		RequestURL:     target.URL,
		RequestMethod:  target.Method,
		RequestHeaders: target.Headers,
		RequestBody:    target.BodyTemplate,
		StartedAt:      e.clock.Now(),
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "run.attempt",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.Int(otelhelper.AttemptNumberKey, number),
	)
	defer span.End()

	startMono := time.Now()
	response, err := e.perform(ctx, target)
	attempt.DurationMs = time.Since(startMono).Milliseconds()
	attempt.CompletedAt = e.clock.Now()

	if err != nil {
		attempt.ErrorClass = ClassifyError(err)
		message := err.Error()
		attempt.ErrorMessage = &message

		otelhelper.SetAttemptError(span, err, string(attempt.ErrorClass))

		return attempt
	}

	attempt.ResponseStatus = &response.status
	attempt.ResponseHeaders = response.headers
	attempt.ResponseBody = response.body
	attempt.ErrorClass = ClassifyStatus(response.status)

	if attempt.ErrorClass != models.ErrorClassNone {
		message := "HTTP " + http.StatusText(response.status)
		attempt.ErrorMessage = &message
	}

	return attempt
}

type attemptResponse struct {
	status  int
	headers map[string]string
	body    string
}

func (e *Executor) perform(ctx context.Context, target *models.Target) (*attemptResponse, error) {
	var body io.Reader
	if target.BodyTemplate != "" {
		body = strings.NewReader(target.BodyTemplate)
	}

	request, err := http.NewRequestWithContext(ctx, target.Method, target.URL, body)
	if err != nil {
		return nil, err
	}

	// Headers go out verbatim; nothing is injected.
	for key, value := range target.Headers {
		request.Header.Set(key, value)
	}

	client := &http.Client{Timeout: target.Timeout()}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}

	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			e.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	responseBody, err := readTruncated(response.Body)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(response.Header))
	for key := range response.Header {
		headers[key] = response.Header.Get(key)
	}

	return &attemptResponse{
		status:  response.StatusCode,
		headers: headers,
		body:    responseBody,
	}, nil
}

// readTruncated reads at most maxResponseBytes of the body and appends the
// truncation sentinel when more was available.
func readTruncated(body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseBytes+1))
	if err != nil {
		return "", err
	}

	if len(data) > maxResponseBytes {
		return string(data[:maxResponseBytes]) + truncationSuffix, nil
	}

	return string(data), nil
}

// backoffDelay returns base * 2^(attempt-1), capped at maxBackoff.
func (e *Executor) backoffDelay(attempt int) time.Duration {
	delay := e.config.RetryDelay

	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}

	return delay
}
