package executor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/eventbus"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/persistence/file"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.events)
}

type fixture struct {
	executor    *Executor
	persistence *file.Persistence
	publisher   *recordingPublisher
}

func newFixture(t *testing.T, config Config) *fixture {
	t.Helper()

	clk := clock.NewWith(clockwork.NewRealClock(), time.UTC)
	p := file.NewPersistence(t.TempDir(), clk)
	publisher := &recordingPublisher{}
	tracer := noop.NewTracerProvider().Tracer("test")

	if config.RetryDelay == 0 {
		// Keep retry chains fast under test.
		config.RetryDelay = time.Millisecond
	}

	return &fixture{
		executor:    New(p, clk, publisher, tracer, config),
		persistence: p,
		publisher:   publisher,
	}
}

func (f *fixture) seedRun(t *testing.T, url string, timeoutSeconds int) (*models.Run, *models.Target) {
	t.Helper()

	target := &models.Target{
		ID:             "t1",
		Name:           "test target",
		URL:            url,
		Method:         "POST",
		Headers:        map[string]string{"X-Token": "secret"},
		BodyTemplate:   `{"ping":true}`,
		TimeoutSeconds: timeoutSeconds,
	}
	require.NoError(t, f.persistence.Targets().Save(t.Context(), target))

	schedule := &models.Schedule{
		ID:              "s1",
		Name:            "test schedule",
		TargetID:        target.ID,
		Type:            models.ScheduleTypeInterval,
		IntervalSeconds: 60,
		StartAt:         time.Now(),
		Status:          models.ScheduleStatusActive,
	}
	require.NoError(t, f.persistence.Schedules().Save(t.Context(), schedule))

	run := models.NewRun(schedule.ID, target.ID, time.Now())
	run.ID = "r1"
	require.NoError(t, f.persistence.Runs().Create(t.Context(), run))

	return run, target
}

func (f *fixture) runAndWait(t *testing.T, run *models.Run, target *models.Target) *models.Run {
	t.Helper()

	f.executor.Dispatch(t.Context(), run, target)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.executor.Shutdown(ctx))

	final, err := f.persistence.Runs().GetByID(t.Context(), run.ID)
	require.NoError(t, err)

	return final
}

func TestExecutor_Success(t *testing.T) {
	var gotMethod, gotToken, gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotToken = r.Header.Get("X-Token")

		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)

		w.Header().Set("X-Response", "ok")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer server.Close()

	f := newFixture(t, Config{MaxRetries: 3})
	run, target := f.seedRun(t, server.URL, 5)

	final := f.runAndWait(t, run, target)

	assert.Equal(t, models.RunStatusSucceeded, final.Status)
	assert.Equal(t, 1, final.AttemptCount)
	assert.Nil(t, final.FinalError)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	// The request went out exactly as declared on the target.
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, `{"ping":true}`, gotBody)

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.ErrorClassNone, attempts[0].ErrorClass)
	require.NotNil(t, attempts[0].ResponseStatus)
	assert.Equal(t, http.StatusOK, *attempts[0].ResponseStatus)
	assert.Equal(t, `{"status":"accepted"}`, attempts[0].ResponseBody)
	assert.Equal(t, "ok", attempts[0].ResponseHeaders["X-Response"])

	assert.Equal(t, 1, f.publisher.len())
}

func TestExecutor_4xxIsTerminal(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newFixture(t, Config{MaxRetries: 3})
	run, target := f.seedRun(t, server.URL, 5)

	final := f.runAndWait(t, run, target)

	// 4xx responses are never retried.
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Equal(t, 1, final.AttemptCount)
	assert.Equal(t, 1, calls)
	require.NotNil(t, final.FinalError)
	assert.Contains(t, *final.FinalError, "Not Found")

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.ErrorClassHTTP4xx, attempts[0].ErrorClass)
}

func TestExecutor_RetriesUntilSuccess(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture(t, Config{MaxRetries: 3})
	run, target := f.seedRun(t, server.URL, 5)

	final := f.runAndWait(t, run, target)

	assert.Equal(t, models.RunStatusSucceeded, final.Status)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Nil(t, final.FinalError)

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, models.ErrorClassHTTP5xx, attempts[0].ErrorClass)
	assert.Equal(t, models.ErrorClassHTTP5xx, attempts[1].ErrorClass)
	assert.Equal(t, models.ErrorClassNone, attempts[2].ErrorClass)
}

func TestExecutor_RetriesExhausted(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFixture(t, Config{MaxRetries: 2})
	run, target := f.seedRun(t, server.URL, 5)

	final := f.runAndWait(t, run, target)

	// First try plus two retries, then the run fails with the last error.
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Equal(t, 3, final.AttemptCount)
	assert.Equal(t, 3, calls)
	require.NotNil(t, final.FinalError)
	assert.Contains(t, *final.FinalError, "Service Unavailable")
}

func TestExecutor_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := server.URL
	server.Close()

	f := newFixture(t, Config{MaxRetries: 1})
	run, target := f.seedRun(t, url, 5)

	final := f.runAndWait(t, run, target)

	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Equal(t, 2, final.AttemptCount)

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.ErrorClassConnection, attempts[0].ErrorClass)
	require.NotNil(t, attempts[0].ErrorMessage)
	assert.Nil(t, attempts[0].ResponseStatus)
}

func TestExecutor_ResponseBodyTruncation(t *testing.T) {
	big := strings.Repeat("x", maxResponseBytes+5000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(big))
	}))
	defer server.Close()

	f := newFixture(t, Config{})
	run, target := f.seedRun(t, server.URL, 5)

	final := f.runAndWait(t, run, target)
	assert.Equal(t, models.RunStatusSucceeded, final.Status)

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	body := attempts[0].ResponseBody
	assert.True(t, strings.HasSuffix(body, truncationSuffix))
	assert.Len(t, body, maxResponseBytes+len(truncationSuffix))
}

func TestExecutor_SkipsNonPendingRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newFixture(t, Config{})
	run, target := f.seedRun(t, server.URL, 5)

	// The run was already closed, e.g. by startup recovery.
	completed := time.Now()
	require.NoError(t, f.persistence.Runs().UpdateStatus(t.Context(), run.ID, models.RunStatusFailed, persistence.RunStatusUpdate{
		CompletedAt: &completed,
	}))

	final := f.runAndWait(t, run, target)

	assert.Equal(t, models.RunStatusFailed, final.Status)

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, attempts)
	assert.Equal(t, 0, f.publisher.len())
}

func TestBackoffDelay(t *testing.T) {
	e := &Executor{config: Config{RetryDelay: time.Second}}

	testCases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, e.backoffDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestExecutor_BackoffSpacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fakeClock := clockwork.NewFakeClockAt(start)
	clk := clock.NewWith(fakeClock, time.UTC)

	p := file.NewPersistence(t.TempDir(), clk)
	publisher := &recordingPublisher{}
	tracer := noop.NewTracerProvider().Tracer("test")

	f := &fixture{
		executor:    New(p, clk, publisher, tracer, Config{MaxRetries: 2, RetryDelay: time.Second}),
		persistence: p,
		publisher:   publisher,
	}
	run, target := f.seedRun(t, server.URL, 5)

	f.executor.Dispatch(t.Context(), run, target)

	// Walk the clock through each retry sleep: wait for the worker to
	// block, then advance exactly the expected delay.
	go func() {
		for _, delay := range []time.Duration{time.Second, 2 * time.Second} {
			if err := fakeClock.BlockUntilContext(t.Context(), 1); err != nil {
				return
			}

			fakeClock.Advance(delay)
		}
	}()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.executor.Shutdown(ctx))

	attempts, err := f.persistence.Attempts().ListByRun(t.Context(), run.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	// Inter-attempt gaps follow base * 2^(attempt-1) on the clock the
	// executor sleeps on.
	assert.Equal(t, time.Second, attempts[1].StartedAt.Sub(attempts[0].CompletedAt))
	assert.Equal(t, 2*time.Second, attempts[2].StartedAt.Sub(attempts[1].CompletedAt))

	final, err := f.persistence.Runs().GetByID(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Equal(t, 3, final.AttemptCount)
}
