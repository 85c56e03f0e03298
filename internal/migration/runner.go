// internal/migration/runner.go
package migration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markb/chatlite/internal/log"
)

// Runner executes migrations against a Postgres database.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a migration runner.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("create _schema_migrations: %w", err)
	}
	return nil
}

// Applied returns all applied migrations, ordered by version ascending.
func (r *Runner) Applied(ctx context.Context) ([]Migration, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT version, name, applied_at
		FROM _schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		migrations = append(migrations, m)
	}
	return migrations, rows.Err()
}

// apply runs one migration and records it, atomically.
func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Filename(), err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO _schema_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Filename(), err)
	}
	return tx.Commit(ctx)
}

// Up applies every pending migration from the available set, in version
// order. It returns the number of migrations applied.
func (r *Runner) Up(ctx context.Context, available []Migration) (int, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return 0, err
	}

	pending := Pending(applied, available)
	for _, m := range pending {
		log.Info("applying migration", "version", m.Version, "name", m.Name)
		if err := r.apply(ctx, m); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}
