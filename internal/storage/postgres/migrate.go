package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

//go:embed 001_initial_schema.sql
var initialSchema string

// RunMigrations applies the schema. Every statement is idempotent, so it is
// safe to run on each start.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, initialSchema); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}
