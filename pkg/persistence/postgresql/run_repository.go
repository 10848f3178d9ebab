package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// RunRepository handles run-related database operations. The unique index on
// idempotency_key turns duplicate firings into ErrDuplicateRun, and status
// updates guard the legal transitions inside the statement itself so they
// stay linearizable per run.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
	clock  *clock.Clock
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger, clk *clock.Clock) *RunRepository {
	return &RunRepository{db: db, logger: logger, clock: clk}
}

const runColumns = `
	id, schedule_id, target_id, scheduled_at, started_at, completed_at,
	status, idempotency_key, attempt_count, final_error, created_at, updated_at
`

// Create inserts a pending run. Fails with ErrDuplicateRun when the
// idempotency key collides with an existing row.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	now := r.clock.Now()
	run.CreatedAt = now
	run.UpdatedAt = now

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ScheduleID,
		run.TargetID,
		run.ScheduledAt,
		run.StartedAt,
		run.CompletedAt,
		run.Status,
		run.IdempotencyKey,
		run.AttemptCount,
		run.FinalError,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &persistence.RunError{Op: "Create", Key: run.IdempotencyKey, Err: persistence.ErrDuplicateRun}
		}

		return &persistence.RunError{Op: "Create", RunID: run.ID, Err: err}
	}

	return nil
}

// GetByID returns a run by id, or ErrRunNotFound.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.RunError{Op: "GetByID", RunID: id, Err: persistence.ErrRunNotFound}
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// List returns runs matching the filter, newest scheduled_at first.
func (r *RunRepository) List(ctx context.Context, filter persistence.RunFilter) ([]*models.Run, error) {
	where, args := buildRunFilter(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	if limit > 1000 {
		limit = 1000
	}

	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
		SELECT %s FROM runs
		%s
		ORDER BY scheduled_at DESC
		LIMIT $%d OFFSET $%d
	`, runColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Count returns the number of runs matching the filter.
func (r *RunRepository) Count(ctx context.Context, filter persistence.RunFilter) (int, error) {
	where, args := buildRunFilter(filter)

	var count int

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}

	return count, nil
}

// CountInFlight returns the number of pending or running runs for a schedule.
func (r *RunRepository) CountInFlight(ctx context.Context, scheduleID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM runs
		WHERE schedule_id = $1 AND status IN ($2, $3)
	`

	var count int

	err := r.db.QueryRowContext(ctx, query, scheduleID, models.RunStatusPending, models.RunStatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count in-flight runs: %w", err)
	}

	return count, nil
}

// UpdateStatus applies a run status transition. The WHERE clause restricts
// the update to rows whose current status legally precedes the new one, so a
// terminal run can never be rewritten; a zero-row update surfaces as
// ErrInvalidRunTransition.
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus, update persistence.RunStatusUpdate) error {
	query := `
		UPDATE runs SET
			status = $2,
			started_at = COALESCE($3, started_at),
			completed_at = COALESCE($4, completed_at),
			attempt_count = COALESCE($5, attempt_count),
			final_error = COALESCE($6, final_error),
			updated_at = $7
		WHERE id = $1 AND status = ANY($8)
	`

	allowed := allowedPriorStatuses(status)

	result, err := r.db.ExecContext(ctx, query,
		id,
		status,
		update.StartedAt,
		update.CompletedAt,
		update.AttemptCount,
		update.FinalError,
		r.clock.Now(),
		pq.Array(allowed),
	)
	if err != nil {
		return &persistence.RunError{Op: "UpdateStatus", RunID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish a missing run from an illegal transition.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return &persistence.RunError{Op: "UpdateStatus", RunID: id, Err: err}
		}

		if !exists {
			return &persistence.RunError{Op: "UpdateStatus", RunID: id, Err: persistence.ErrRunNotFound}
		}

		return &persistence.RunError{Op: "UpdateStatus", RunID: id, Err: persistence.ErrInvalidRunTransition}
	}

	return nil
}

// BulkFailInFlight marks every pending or running run failed. Used by
// startup recovery to resolve crash-in-flight ambiguity.
func (r *RunRepository) BulkFailInFlight(ctx context.Context, finalError string, completedAt time.Time) (int, error) {
	query := `
		UPDATE runs SET
			status = $1,
			final_error = $2,
			completed_at = $3,
			updated_at = $3
		WHERE status IN ($4, $5)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.RunStatusFailed,
		finalError,
		completedAt,
		models.RunStatusPending,
		models.RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk fail in-flight runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(affected), nil
}

func allowedPriorStatuses(next models.RunStatus) []string {
	if next == models.RunStatusRunning {
		return []string{string(models.RunStatusPending)}
	}

	return []string{string(models.RunStatusPending), string(models.RunStatusRunning)}
}

func buildRunFilter(filter persistence.RunFilter) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.ScheduleID != "" {
		args = append(args, filter.ScheduleID)
		clauses = append(clauses, fmt.Sprintf("schedule_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.ScheduledAfter != nil {
		args = append(args, *filter.ScheduledAfter)
		clauses = append(clauses, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}

	if filter.ScheduledBefore != nil {
		args = append(args, *filter.ScheduledBefore)
		clauses = append(clauses, fmt.Sprintf("scheduled_at <= $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}

	where := "WHERE " + clauses[0]
	for _, clause := range clauses[1:] {
		where += " AND " + clause
	}

	return where, args
}

func (r *RunRepository) scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}

	err := row.Scan(
		&run.ID,
		&run.ScheduleID,
		&run.TargetID,
		&run.ScheduledAt,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Status,
		&run.IdempotencyKey,
		&run.AttemptCount,
		&run.FinalError,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ScheduledAt = r.clock.In(run.ScheduledAt)

	if run.StartedAt != nil {
		started := r.clock.In(*run.StartedAt)
		run.StartedAt = &started
	}

	if run.CompletedAt != nil {
		completed := r.clock.In(*run.CompletedAt)
		run.CompletedAt = &completed
	}

	return run, nil
}
