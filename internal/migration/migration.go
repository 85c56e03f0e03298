// Package migration provides schema migration tracking and execution for
// chatlite. It manages versioned SQL migrations, built-in or loaded from a
// directory, and tracks which have been applied via the _schema_migrations
// table.
package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Migration represents a single database migration.
type Migration struct {
	Version   string    // Timestamp version (YYYYMMDDHHmmss)
	Name      string    // Human-readable name
	SQL       string    // SQL statements to execute
	AppliedAt time.Time // When migration was applied (zero if pending)
}

// GenerateVersion creates a new migration version based on current UTC time.
func GenerateVersion() string {
	return time.Now().UTC().Format("20060102150405")
}

// Filename returns the migration filename in the format: version_name.sql
func (m Migration) Filename() string {
	return fmt.Sprintf("%s_%s.sql", m.Version, m.Name)
}

// filenameRegex matches migration filenames: YYYYMMDDHHmmss_name.sql
var filenameRegex = regexp.MustCompile(`^(\d{14})_(.+)\.sql$`)

// ParseFilename parses a migration filename into a Migration struct.
// Returns an error if the filename doesn't match the expected format.
func ParseFilename(filename string) (Migration, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return Migration{}, fmt.Errorf("invalid migration filename: %s", filename)
	}

	return Migration{
		Version: matches[1],
		Name:    matches[2],
	}, nil
}

// LoadDir reads *.sql migration files from a directory. Files that do not
// match the version_name.sql format are rejected.
func LoadDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		m, err := ParseFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		m.SQL = string(data)
		migrations = append(migrations, m)
	}

	Sort(migrations)
	return migrations, nil
}

// Sort orders migrations by version ascending.
func Sort(migrations []Migration) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}

// Pending returns the available migrations that have not been applied yet,
// ordered by version.
func Pending(applied, available []Migration) []Migration {
	seen := make(map[string]bool, len(applied))
	for _, m := range applied {
		seen[m.Version] = true
	}

	var pending []Migration
	for _, m := range available {
		if !seen[m.Version] {
			pending = append(pending, m)
		}
	}
	Sort(pending)
	return pending
}
