package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
)

// TargetRepository handles target-related database operations.
type TargetRepository struct {
	db     *sql.DB
	logger *slog.Logger
	clock  *clock.Clock
}

// NewTargetRepository creates a new target repository.
func NewTargetRepository(db *sql.DB, logger *slog.Logger, clk *clock.Clock) *TargetRepository {
	return &TargetRepository{db: db, logger: logger, clock: clk}
}

// Save inserts or updates a target.
func (r *TargetRepository) Save(ctx context.Context, target *models.Target) error {
	now := r.clock.Now()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}

	target.UpdatedAt = now

	headers, err := json.Marshal(target.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal target headers: %w", err)
	}

	query := `
		INSERT INTO targets (
			id, name, url, method, headers, body_template, timeout_seconds, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			method = EXCLUDED.method,
			headers = EXCLUDED.headers,
			body_template = EXCLUDED.body_template,
			timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		target.ID,
		target.Name,
		target.URL,
		target.Method,
		headers,
		target.BodyTemplate,
		target.TimeoutSeconds,
		target.CreatedAt,
		target.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}

	return nil
}

// GetByID returns a target by id, or ErrTargetNotFound.
func (r *TargetRepository) GetByID(ctx context.Context, id string) (*models.Target, error) {
	query := `
		SELECT id, name, url, method, headers, body_template, timeout_seconds, created_at, updated_at
		FROM targets
		WHERE id = $1
	`

	target, err := r.scanTarget(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.TargetError{Op: "GetByID", TargetID: id, Err: persistence.ErrTargetNotFound}
		}

		return nil, fmt.Errorf("failed to scan target: %w", err)
	}

	return target, nil
}

// GetAll returns all targets, newest first.
func (r *TargetRepository) GetAll(ctx context.Context) ([]*models.Target, error) {
	query := `
		SELECT id, name, url, method, headers, body_template, timeout_seconds, created_at, updated_at
		FROM targets
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	targets := make([]*models.Target, 0)

	for rows.Next() {
		target, err := r.scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}

		targets = append(targets, target)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}

	return targets, nil
}

// Delete removes a target. The schedules, runs and attempts hanging off it
// are removed by the cascading foreign keys in the same statement.
func (r *TargetRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.TargetError{Op: "Delete", TargetID: id, Err: persistence.ErrTargetNotFound}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TargetRepository) scanTarget(row rowScanner) (*models.Target, error) {
	target := &models.Target{}

	var (
		headers      []byte
		bodyTemplate sql.NullString
	)

	err := row.Scan(
		&target.ID,
		&target.Name,
		&target.URL,
		&target.Method,
		&headers,
		&bodyTemplate,
		&target.TimeoutSeconds,
		&target.CreatedAt,
		&target.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &target.Headers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target headers: %w", err)
		}
	}

	target.BodyTemplate = bodyTemplate.String
	target.CreatedAt = r.clock.In(target.CreatedAt)
	target.UpdatedAt = r.clock.In(target.UpdatedAt)

	return target, nil
}
