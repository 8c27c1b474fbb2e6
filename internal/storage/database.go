package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	// Foreign keys and busy timeout go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS records (
			source TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			occurred_at TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			magnitude REAL NOT NULL,
			depth_km REAL NOT NULL,
			region TEXT NOT NULL,
			event_type TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_magnitude ON records (magnitude);`,
		`CREATE TABLE IF NOT EXISTS segments (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (source) REFERENCES records(source) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_segments_source ON segments (source, chunk_index);`,
		`CREATE TABLE IF NOT EXISTS index_builds (
			collection TEXT PRIMARY KEY,
			index_version TEXT NOT NULL,
			dataset_path TEXT NOT NULL,
			records INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			segments INTEGER NOT NULL,
			embedding_model TEXT NOT NULL,
			dimension INTEGER NOT NULL,
			built_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
