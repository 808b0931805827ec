package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if database.Path() != path {
		t.Errorf("expected path %s, got %s", path, database.Path())
	}
}

func TestMigrate_AppliesSchema(t *testing.T) {
	database := openTestDB(t)

	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{"kv_cache", "pending_ops", "schema_migrations"} {
		var count int
		err := database.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("table check failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database := openTestDB(t)

	if err := database.Migrate(); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %v", pending)
	}
	if len(applied) == 0 {
		t.Error("expected at least one applied migration")
	}
}

func TestMigrationStatus_BeforeMigrate(t *testing.T) {
	database := openTestDB(t)

	applied, pending, err := database.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected no applied migrations, got %v", applied)
	}
	if len(pending) == 0 {
		t.Error("expected pending migrations before Migrate")
	}
}
