// internal/migration/migration_test.go
package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGenerateVersion(t *testing.T) {
	version := GenerateVersion()

	if len(version) != 14 {
		t.Errorf("expected 14-character version, got %d: %s", len(version), version)
	}

	if _, err := time.Parse("20060102150405", version); err != nil {
		t.Errorf("version is not a valid timestamp: %v", err)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantErr     bool
	}{
		{"20250601120000_create_users.sql", "20250601120000", "create_users", false},
		{"20250601120300_create_messages.sql", "20250601120300", "create_messages", false},
		{"create_users.sql", "", "", true},
		{"2025_too_short.sql", "", "", true},
		{"20250601120000_create_users.txt", "", "", true},
	}

	for _, tt := range tests {
		m, err := ParseFilename(tt.filename)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFilename(%q): expected error", tt.filename)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFilename(%q): %v", tt.filename, err)
			continue
		}
		if m.Version != tt.wantVersion || m.Name != tt.wantName {
			t.Errorf("ParseFilename(%q) = %s/%s, want %s/%s",
				tt.filename, m.Version, m.Name, tt.wantVersion, tt.wantName)
		}
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	m := Migration{Version: "20250601120000", Name: "create_users"}

	parsed, err := ParseFilename(m.Filename())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if parsed.Version != m.Version || parsed.Name != m.Name {
		t.Errorf("round trip changed migration: %+v", parsed)
	}
}

func TestPending(t *testing.T) {
	available := Builtin()
	applied := available[:2]

	pending := Pending(applied, available)
	if len(pending) != len(available)-2 {
		t.Fatalf("expected %d pending, got %d", len(available)-2, len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i-1].Version >= pending[i].Version {
			t.Errorf("pending migrations out of order: %s >= %s",
				pending[i-1].Version, pending[i].Version)
		}
	}
}

func TestPending_AllApplied(t *testing.T) {
	available := Builtin()

	if pending := Pending(available, available); len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(pending))
	}
}

func TestBuiltinOrdering(t *testing.T) {
	builtin := Builtin()
	if len(builtin) == 0 {
		t.Fatal("no builtin migrations")
	}

	seen := make(map[string]bool)
	for i, m := range builtin {
		if m.SQL == "" {
			t.Errorf("migration %s has no SQL", m.Filename())
		}
		if seen[m.Version] {
			t.Errorf("duplicate version %s", m.Version)
		}
		seen[m.Version] = true
		if i > 0 && builtin[i-1].Version >= m.Version {
			t.Errorf("builtin migrations out of order at %d", i)
		}
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20250601130000_add_avatar_index.sql": "CREATE INDEX idx_users_avatar ON users(avatar_url);",
		"20250601120000_seed.sql":             "SELECT 1;",
		"README.md":                           "not a migration",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	migrations, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Name != "seed" || migrations[1].Name != "add_avatar_index" {
		t.Errorf("wrong order or names: %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if migrations[1].SQL != files["20250601130000_add_avatar_index.sql"] {
		t.Errorf("SQL not loaded: %q", migrations[1].SQL)
	}
}

func TestLoadDir_RejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadDir(dir); err == nil {
		t.Error("expected error for bad filename")
	}
}
