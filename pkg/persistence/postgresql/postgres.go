// Package postgresql provides PostgreSQL persistence for targets, schedules,
// runs and attempts.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/persistence/sqlbase"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db        *sql.DB
	logger    *slog.Logger
	targets   *TargetRepository
	schedules *ScheduleRepository
	runs      *RunRepository
	attempts  *AttemptRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, clk *clock.Clock, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:        database,
		logger:    logger,
		targets:   NewTargetRepository(database, logger, clk),
		schedules: NewScheduleRepository(database, logger, clk),
		runs:      NewRunRepository(database, logger, clk),
		attempts:  NewAttemptRepository(database, logger, clk),
	}, nil
}

// Targets returns the target repository.
func (p *Persistence) Targets() persistence.TargetRepository {
	return p.targets
}

// Schedules returns the schedule repository.
func (p *Persistence) Schedules() persistence.ScheduleRepository {
	return p.schedules
}

// Runs returns the run repository.
func (p *Persistence) Runs() persistence.RunRepository {
	return p.runs
}

// Attempts returns the attempt repository.
func (p *Persistence) Attempts() persistence.AttemptRepository {
	return p.attempts
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
