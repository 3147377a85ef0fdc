package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDBCmd_Help(t *testing.T) {
	out, err := runCmd(t, "", "db", "--help")
	if err != nil {
		t.Fatalf("db --help failed: %v", err)
	}
	if !strings.Contains(out, "Database management") || !strings.Contains(out, "migrate") {
		t.Errorf("unexpected help: %s", out)
	}
}

func TestDBMigrate_SQLite(t *testing.T) {
	path, dbPath := writeConfig(t, "")

	out, err := runCmd(t, "", "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Migrated 2 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// Idempotent.
	if _, err := runCmd(t, "", "db", "migrate", "-c", path); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestDBMigrate_Pebble(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchboard.yaml")
	body := "auth: {secret: x}\nstore:\n  driver: pebble\n  path: " + filepath.Join(dir, "data") + "\n"
	os.WriteFile(path, []byte(body), 0644)

	out, err := runCmd(t, "", "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "needs no migration") {
		t.Errorf("output = %q", out)
	}
}
