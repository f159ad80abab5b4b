package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	for _, table := range []string{"files", "sync_history", "sync_cycles", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckDBMigrationStatus(db)
		if !errors.Is(err, ErrNoSchema) {
			t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNoSchema", err)
		}
	})

	t.Run("migrated database is current", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}

		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() error = %v", err)
		}
	})

	t.Run("newer database is rejected", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		if _, err := db.Exec("UPDATE schema_migrations SET version = 999"); err != nil {
			t.Fatalf("bumping version: %v", err)
		}

		if err := CheckDBMigrationStatus(db); err == nil {
			t.Error("CheckDBMigrationStatus() expected error for newer schema")
		}
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}

	version, dirty, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if version != latest || dirty {
		t.Errorf("SchemaVersion() = (%d, %v), want (%d, false)", version, dirty, latest)
	}
}

func TestLatestVersion(t *testing.T) {
	got, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if got != 3 {
		t.Errorf("LatestVersion() = %d, want 3", got)
	}
}

func TestSchema_Constraints(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
		stmt  string
	}{
		{
			name: "duplicate local path",
			setup: []string{
				"INSERT INTO files (kind, local_path, remote_id, name) VALUES ('file', '/r/a.txt', 'id-1', 'a.txt')",
			},
			stmt: "INSERT INTO files (kind, local_path, remote_id, name) VALUES ('file', '/r/a.txt', 'id-2', 'a.txt')",
		},
		{
			name: "duplicate remote id",
			setup: []string{
				"INSERT INTO files (kind, local_path, remote_id, name) VALUES ('file', '/r/a.txt', 'id-1', 'a.txt')",
			},
			stmt: "INSERT INTO files (kind, local_path, remote_id, name) VALUES ('file', '/r/b.txt', 'id-1', 'b.txt')",
		},
		{
			name: "unknown kind",
			stmt: "INSERT INTO files (kind, local_path, remote_id, name) VALUES ('link', '/r/a', 'id-1', 'a')",
		},
		{
			name: "missing parent",
			stmt: "INSERT INTO files (kind, local_path, remote_id, name, parent_id) VALUES ('file', '/r/a', 'id-1', 'a', 42)",
		},
		{
			name: "history for missing file",
			stmt: "INSERT INTO sync_history (file_id, action, status) VALUES (42, 'download', 'success')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			if err := MigrateUp(db); err != nil {
				t.Fatalf("MigrateUp() error = %v", err)
			}
			for _, stmt := range tt.setup {
				if _, err := db.Exec(stmt); err != nil {
					t.Fatalf("setup %q: %v", stmt, err)
				}
			}

			if _, err := db.Exec(tt.stmt); err == nil {
				t.Errorf("Exec(%q) succeeded, want constraint violation", tt.stmt)
			}
		})
	}
}

// openTestDB opens an in-memory SQLite database for testing. The pool is
// limited to one connection because every new :memory: connection is a
// separate database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
