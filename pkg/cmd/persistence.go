// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/strobe/pkg/clock"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/persistence/file"
	"github.com/dukex/strobe/pkg/persistence/postgresql"
)

// NewPersistence selects the store from the database URL scheme:
// postgres:// (or postgresql://) picks PostgreSQL, anything else the
// JSON-file store rooted at the given path.
func NewPersistence(
	ctx context.Context,
	logger *slog.Logger,
	clk *clock.Clock,
	databaseURL string,
) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresql.NewPersistence(ctx, logger, clk, databaseURL)
	}

	return file.NewPersistence(databaseURL, clk), nil
}
