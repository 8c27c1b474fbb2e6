package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "valid path",
			path:    dbPath,
			wantErr: false,
		},
		{
			name:    "invalid path",
			path:    "/invalid/path/to/db.db",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.path)

			if tt.wantErr {
				if err == nil {
					t.Errorf("New() expected error, got nil")
				}
				if db != nil {
					_ = db.Close()
				}
				return
			}

			if err != nil {
				t.Errorf("New() unexpected error: %v", err)
				return
			}

			if db == nil {
				t.Fatal("New() returned nil database")
			}

			// Verify connection pool settings
			if db.Stats().MaxOpenConnections != 25 {
				t.Errorf("New() MaxOpenConnections = %v, want 25", db.Stats().MaxOpenConnections)
			}

			_ = db.Close()
		})
	}
}

func TestNew_EnablesForeignKeys(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Check that foreign keys are enabled
	var fkEnabled int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	if err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}

	if fkEnabled != 1 {
		t.Error("New() should enable foreign keys")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	// openTestDB already migrated once
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	for _, table := range []string{"records", "segments", "index_builds"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Migrate() table %s not found", table)
		}
	}

	var indexes int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name IN ('idx_records_magnitude', 'idx_segments_source')").Scan(&indexes); err != nil {
		t.Fatalf("Failed to check indexes: %v", err)
	}
	if indexes != 2 {
		t.Errorf("Migrate() indexes = %d, want 2", indexes)
	}
}

func TestMigrate_SegmentsCascade(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`INSERT INTO records (source, seq, occurred_at, latitude, longitude, magnitude, depth_km, region, text)
		VALUES ('a.csv#1', 0, '2023-02-06T01:17:32Z', 37.288, 37.043, 7.8, 8.6, 'Pazarcik', 'text')`); err != nil {
		t.Fatalf("insert record: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO segments (id, source, chunk_index, seq, text) VALUES ('s1', 'a.csv#1', 0, 0, 'text')`); err != nil {
		t.Fatalf("insert segment: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO segments (id, source, chunk_index, seq, text) VALUES ('s2', 'missing#1', 0, 1, 'text')`); err == nil {
		t.Error("segment with unknown source should violate the foreign key")
	}

	if _, err := db.Exec(`DELETE FROM records WHERE source = 'a.csv#1'`); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM segments").Scan(&count); err != nil {
		t.Fatalf("count segments: %v", err)
	}
	if count != 0 {
		t.Errorf("segments left after record delete = %d, want 0", count)
	}
}

// openTestDB opens a migrated database in a temp dir.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
