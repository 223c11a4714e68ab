package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatal(err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openTest(t)
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}

	for _, table := range []string{"songs", "stems", "setlists", "setlist_items", "app_settings", "migrations"} {
		var name string
		err := conn.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigrateAppliedExactlyOnce(t *testing.T) {
	conn := openTest(t)
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate must be a no-op, got %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM migrations`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migration rows, got %d", len(migrations), count)
	}
}

func TestMigrationRowsCarryNames(t *testing.T) {
	conn := openTest(t)
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}

	var name string
	var appliedAt int64
	if err := conn.QueryRow(`SELECT name, applied_at FROM migrations WHERE id = 1`).Scan(&name, &appliedAt); err != nil {
		t.Fatal(err)
	}
	if name != "initial_schema" {
		t.Fatalf("unexpected migration name %q", name)
	}
	if appliedAt == 0 {
		t.Fatal("applied_at not recorded")
	}
}
