package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0.2.0_sessions.up.sql", "CREATE TABLE sessions (id TEXT);\n")
	writeFile(t, dir, "0.1.0_users.up.sql", "CREATE TABLE users (id TEXT);\n")
	writeFile(t, dir, "0.1.0_users.down.sql", "DROP TABLE users;\n")
	writeFile(t, dir, "0.1.0_users.json", `{"description": "base tables", "depends_on": []}`)
	writeFile(t, dir, "notes.txt", "not a migration")
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("creating subdirectory: %v", err)
	}

	migrations, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	users := migrations[0]
	if users.ID != "0.1.0_users" || users.Version != "0.1.0" || users.Name != "users" {
		t.Errorf("unexpected identity: %+v", users)
	}
	if !strings.Contains(users.SQL, "CREATE TABLE users") {
		t.Errorf("expected forward body, got %q", users.SQL)
	}
	if !strings.Contains(users.RollbackSQL, "DROP TABLE users") {
		t.Errorf("expected reverse body, got %q", users.RollbackSQL)
	}
	if users.Description != "base tables" {
		t.Errorf("expected manifest description, got %q", users.Description)
	}
	if !strings.HasPrefix(users.Checksum, "sha256:") {
		t.Errorf("expected sha256 checksum, got %q", users.Checksum)
	}
	if users.CreatedAt.IsZero() {
		t.Error("expected creation time from file modtime")
	}

	sessions := migrations[1]
	if sessions.Version != "0.2.0" {
		t.Errorf("expected versions sorted, got %s second", sessions.Version)
	}
	if sessions.RollbackSQL != "" {
		t.Errorf("expected no reverse body, got %q", sessions.RollbackSQL)
	}
	if sessions.CanRollback() {
		t.Error("expected CanRollback to be false without a reverse body")
	}
}

func TestLoadDirManifestDependencies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0.1.0_users.up.sql", "CREATE TABLE users (id TEXT);\n")
	writeFile(t, dir, "0.2.0_sessions.up.sql", "CREATE TABLE sessions (id TEXT);\n")
	writeFile(t, dir, "0.2.0_sessions.json", `{"depends_on": ["0.1.0"]}`)

	migrations, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	sessions := migrations[1]
	if len(sessions.DependsOn) != 1 || sessions.DependsOn[0] != "0.1.0" {
		t.Errorf("expected depends_on [0.1.0], got %v", sessions.DependsOn)
	}
}

func TestLoadDirDuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0.1.0_users.up.sql", "CREATE TABLE users (id TEXT);\n")
	writeFile(t, dir, "0.1.0_accounts.up.sql", "CREATE TABLE accounts (id TEXT);\n")

	_, err := LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 0.1.0") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestLoadDirRejectsInvalidManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"wrong type", `{"description": 42}`},
		{"unknown field", `{"owner": "platform"}`},
		{"malformed json", `{"description":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "0.1.0_users.up.sql", "CREATE TABLE users (id TEXT);\n")
			writeFile(t, dir, "0.1.0_users.json", tt.manifest)

			_, err := LoadDir(dir)
			if err == nil || !strings.Contains(err.Error(), "invalid manifest") {
				t.Fatalf("expected manifest error, got %v", err)
			}
		})
	}
}

func TestLoadDirSequenceNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_sessions.up.sql", "CREATE TABLE sessions (id TEXT);\n")
	writeFile(t, dir, "0001_users.up.sql", "CREATE TABLE users (id TEXT);\n")

	migrations, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Version != "0001" || migrations[1].Version != "0002" {
		t.Fatalf("expected sequence-numbered versions in order, got %+v", migrations)
	}
}
