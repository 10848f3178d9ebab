package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// ScheduleRepository handles schedule-related database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
	clock  *clock.Clock
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger, clk *clock.Clock) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger, clock: clk}
}

const scheduleColumns = `
	id, name, target_id, schedule_type, interval_seconds, cron_expression,
	start_at, duration_seconds, max_runs, status, runs_count, last_run_at,
	next_run_at, created_at, updated_at
`

// Save inserts or updates a schedule.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	now := r.clock.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			target_id = EXCLUDED.target_id,
			schedule_type = EXCLUDED.schedule_type,
			interval_seconds = EXCLUDED.interval_seconds,
			cron_expression = EXCLUDED.cron_expression,
			start_at = EXCLUDED.start_at,
			duration_seconds = EXCLUDED.duration_seconds,
			max_runs = EXCLUDED.max_runs,
			status = EXCLUDED.status,
			runs_count = EXCLUDED.runs_count,
			last_run_at = EXCLUDED.last_run_at,
			next_run_at = EXCLUDED.next_run_at,
			updated_at = EXCLUDED.updated_at
	`

	var interval sql.NullInt64
	if schedule.IntervalSeconds > 0 {
		interval = sql.NullInt64{Int64: int64(schedule.IntervalSeconds), Valid: true}
	}

	var cronExpression sql.NullString
	if schedule.CronExpression != "" {
		cronExpression = sql.NullString{String: schedule.CronExpression, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.Name,
		schedule.TargetID,
		schedule.Type,
		interval,
		cronExpression,
		schedule.StartAt,
		schedule.DurationSeconds,
		schedule.MaxRuns,
		schedule.Status,
		schedule.RunsCount,
		schedule.LastRunAt,
		schedule.NextRunAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return &persistence.ScheduleError{Op: "Save", ScheduleID: schedule.ID, Err: err}
	}

	return nil
}

// GetByID returns a schedule by id, or ErrScheduleNotFound.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	schedule, err := r.scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ScheduleError{Op: "GetByID", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

// GetAll returns all schedules, newest first.
func (r *ScheduleRepository) GetAll(ctx context.Context) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY created_at DESC`

	return r.querySchedules(ctx, query)
}

// ListByTarget returns the schedules referencing a target.
func (r *ScheduleRepository) ListByTarget(ctx context.Context, targetID string) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE target_id = $1 ORDER BY created_at DESC`

	return r.querySchedules(ctx, query, targetID)
}

// ListActive returns every schedule with status=active. Used by startup
// recovery to rearm timers.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE status = $1 ORDER BY created_at ASC`

	return r.querySchedules(ctx, query, models.ScheduleStatusActive)
}

// Delete removes a schedule and, through the foreign keys, its runs and
// attempts.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.ScheduleError{Op: "Delete", ScheduleID: id, Err: persistence.ErrScheduleNotFound}
	}

	return nil
}

func (r *ScheduleRepository) querySchedules(ctx context.Context, query string, args ...any) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	schedules := make([]*models.Schedule, 0)

	for rows.Next() {
		schedule, err := r.scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

func (r *ScheduleRepository) scanSchedule(row rowScanner) (*models.Schedule, error) {
	schedule := &models.Schedule{}

	var (
		interval       sql.NullInt64
		cronExpression sql.NullString
	)

	err := row.Scan(
		&schedule.ID,
		&schedule.Name,
		&schedule.TargetID,
		&schedule.Type,
		&interval,
		&cronExpression,
		&schedule.StartAt,
		&schedule.DurationSeconds,
		&schedule.MaxRuns,
		&schedule.Status,
		&schedule.RunsCount,
		&schedule.LastRunAt,
		&schedule.NextRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.IntervalSeconds = int(interval.Int64)
	schedule.CronExpression = cronExpression.String
	schedule.StartAt = r.clock.In(schedule.StartAt)

	if schedule.LastRunAt != nil {
		last := r.clock.In(*schedule.LastRunAt)
		schedule.LastRunAt = &last
	}

	if schedule.NextRunAt != nil {
		next := r.clock.In(*schedule.NextRunAt)
		schedule.NextRunAt = &next
	}

	return schedule, nil
}
