package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
)

// AttemptRepository is append-only storage for HTTP tries. Attempts are never
// updated or deleted individually; they go away only with their run.
type AttemptRepository struct {
	db     *sql.DB
	logger *slog.Logger
	clock  *clock.Clock
}

// NewAttemptRepository creates a new attempt repository.
func NewAttemptRepository(db *sql.DB, logger *slog.Logger, clk *clock.Clock) *AttemptRepository {
	return &AttemptRepository{db: db, logger: logger, clock: clk}
}

// Append inserts an attempt row.
func (r *AttemptRepository) Append(ctx context.Context, attempt *models.Attempt) error {
	requestHeaders, err := json.Marshal(attempt.RequestHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal request headers: %w", err)
	}

	responseHeaders, err := json.Marshal(attempt.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	query := `
		INSERT INTO attempts (
			id, run_id, attempt_number, request_url, request_method,
			request_headers, request_body, response_status, response_headers,
			response_body, error_class, error_message, duration_ms,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.RunID,
		attempt.AttemptNumber,
		attempt.RequestURL,
		attempt.RequestMethod,
		requestHeaders,
		attempt.RequestBody,
		attempt.ResponseStatus,
		responseHeaders,
		attempt.ResponseBody,
		attempt.ErrorClass,
		attempt.ErrorMessage,
		attempt.DurationMs,
		attempt.StartedAt,
		attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt for run %s: %w", attempt.RunID, err)
	}

	return nil
}

// ListByRun returns a run's attempts ordered by attempt_number.
func (r *AttemptRepository) ListByRun(ctx context.Context, runID string) ([]*models.Attempt, error) {
	query := `
		SELECT
			id, run_id, attempt_number, request_url, request_method,
			request_headers, request_body, response_status, response_headers,
			response_body, error_class, error_message, duration_ms,
			started_at, completed_at
		FROM attempts
		WHERE run_id = $1
		ORDER BY attempt_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	attempts := make([]*models.Attempt, 0)

	for rows.Next() {
		attempt, err := r.scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}

		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}

// ErrorBreakdown tallies attempts per error class since the given instant.
func (r *AttemptRepository) ErrorBreakdown(ctx context.Context, scheduleID string, since time.Time) (map[models.ErrorClass]int, error) {
	query := `
		SELECT a.error_class, COUNT(*)
		FROM attempts a
		JOIN runs ru ON ru.id = a.run_id
		WHERE ($1 = '' OR ru.schedule_id = $1)
		  AND a.started_at >= $2
		GROUP BY a.error_class
	`

	rows, err := r.db.QueryContext(ctx, query, scheduleID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query error breakdown: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	breakdown := make(map[models.ErrorClass]int)

	for rows.Next() {
		var (
			class models.ErrorClass
			count int
		)

		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan error breakdown: %w", err)
		}

		breakdown[class] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error breakdown: %w", err)
	}

	return breakdown, nil
}

// AverageLatencyMs averages attempt duration since the given instant.
// Returns 0 when there are no matching attempts.
func (r *AttemptRepository) AverageLatencyMs(ctx context.Context, scheduleID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(a.duration_ms), 0)
		FROM attempts a
		JOIN runs ru ON ru.id = a.run_id
		WHERE ($1 = '' OR ru.schedule_id = $1)
		  AND a.started_at >= $2
	`

	var average float64

	err := r.db.QueryRowContext(ctx, query, scheduleID, since).Scan(&average)
	if err != nil {
		return 0, fmt.Errorf("failed to query average latency: %w", err)
	}

	return average, nil
}

func (r *AttemptRepository) scanAttempt(row rowScanner) (*models.Attempt, error) {
	attempt := &models.Attempt{}

	var (
		requestHeaders  []byte
		responseHeaders []byte
		requestBody     sql.NullString
		responseBody    sql.NullString
	)

	err := row.Scan(
		&attempt.ID,
		&attempt.RunID,
		&attempt.AttemptNumber,
		&attempt.RequestURL,
		&attempt.RequestMethod,
		&requestHeaders,
		&requestBody,
		&attempt.ResponseStatus,
		&responseHeaders,
		&responseBody,
		&attempt.ErrorClass,
		&attempt.ErrorMessage,
		&attempt.DurationMs,
		&attempt.StartedAt,
		&attempt.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(requestHeaders) > 0 {
		if err := json.Unmarshal(requestHeaders, &attempt.RequestHeaders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request headers: %w", err)
		}
	}

	if len(responseHeaders) > 0 {
		if err := json.Unmarshal(responseHeaders, &attempt.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response headers: %w", err)
		}
	}

	attempt.RequestBody = requestBody.String
	attempt.ResponseBody = responseBody.String
	attempt.StartedAt = r.clock.In(attempt.StartedAt)
	attempt.CompletedAt = r.clock.In(attempt.CompletedAt)

	return attempt, nil
}
