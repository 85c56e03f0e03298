// cmd/migrate.go
package cmd

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/markb/chatlite/internal/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long:  `Commands for applying and inspecting chatlite schema migrations.`,
}

// openMigrationPool connects using CHATLITE_DATABASE_URL.
func openMigrationPool(cmd *cobra.Command) (*pgxpool.Pool, error) {
	databaseURL := envOr("CHATLITE_DATABASE_URL", "postgres://localhost:5432/chatlite")
	pool, err := pgxpool.New(cmd.Context(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	if err := pool.Ping(cmd.Context()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}

// loadMigrations returns the builtin set plus any *.sql files from
// CHATLITE_MIGRATIONS_DIR.
func loadMigrations() ([]migration.Migration, error) {
	migrations := migration.Builtin()
	if dir := os.Getenv("CHATLITE_MIGRATIONS_DIR"); dir != "" {
		extra, err := migration.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, extra...)
		migration.Sort(migrations)
	}
	return migrations, nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openMigrationPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		migrations, err := loadMigrations()
		if err != nil {
			return err
		}

		applied, err := migration.NewRunner(pool).Up(cmd.Context(), migrations)
		if err != nil {
			return err
		}
		fmt.Printf("Applied %d migration(s)\n", applied)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := openMigrationPool(cmd)
		if err != nil {
			return err
		}
		defer pool.Close()

		migrations, err := loadMigrations()
		if err != nil {
			return err
		}

		applied, err := migration.NewRunner(pool).Applied(cmd.Context())
		if err != nil {
			return err
		}

		for _, m := range applied {
			fmt.Printf("applied  %s  %s\n", m.Filename(), m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		for _, m := range migration.Pending(applied, migrations) {
			fmt.Printf("pending  %s\n", m.Filename())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}
