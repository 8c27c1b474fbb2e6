package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// RecordStore defines the interface for the record catalog.
type RecordStore interface {
	// ReplaceAll swaps the whole catalog for the given records and segments.
	ReplaceAll(ctx context.Context, records []*QuakeRecord, segments []*SegmentRecord) error
	// GetBySource gets a record by its source ID.
	// Returns nil and ErrNotFound if not found.
	GetBySource(ctx context.Context, source string) (*QuakeRecord, error)
}

// RecordRepo provides methods for record operations.
// It implements the RecordStore interface.
type RecordRepo struct {
	db *sql.DB
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// ReplaceAll deletes every record and segment and inserts the given ones in a single transaction.
// Readers see either the old catalog or the new one, never a mix.
func (r *RecordRepo) ReplaceAll(ctx context.Context, records []*QuakeRecord, segments []*SegmentRecord) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM segments"); err != nil {
		return fmt.Errorf("failed to clear segments: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (source, seq, occurred_at, latitude, longitude, magnitude, depth_km, region, event_type, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer func() {
		_ = recStmt.Close()
	}()

	for _, rec := range records {
		if _, err = recStmt.ExecContext(ctx,
			rec.Source, rec.Seq, rec.OccurredAt.UTC().Format(time.RFC3339),
			rec.Latitude, rec.Longitude, rec.Magnitude, rec.DepthKm,
			rec.Region, rec.EventType, rec.Text,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", rec.Source, err)
		}
	}

	segStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO segments (id, source, chunk_index, seq, text) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer func() {
		_ = segStmt.Close()
	}()

	for _, seg := range segments {
		if _, err = segStmt.ExecContext(ctx, seg.ID, seg.Source, seg.ChunkIndex, seg.Seq, seg.Text); err != nil {
			return fmt.Errorf("failed to insert segment %s: %w", seg.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	return nil
}

// GetBySource gets a record by its source ID.
// Returns nil and ErrNotFound if not found.
func (r *RecordRepo) GetBySource(ctx context.Context, source string) (*QuakeRecord, error) {
	var rec QuakeRecord
	var occurredAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT source, seq, occurred_at, latitude, longitude, magnitude, depth_km, region, event_type, text
		 FROM records WHERE source = ?`,
		source,
	).Scan(&rec.Source, &rec.Seq, &occurredAt, &rec.Latitude, &rec.Longitude,
		&rec.Magnitude, &rec.DepthKm, &rec.Region, &rec.EventType, &rec.Text)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}

	rec.OccurredAt, err = time.Parse(time.RFC3339, occurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse occurred_at timestamp: %w", err)
	}

	return &rec, nil
}

// Count returns the number of records in the catalog.
func (r *RecordRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query record count: %w", err)
	}
	return count, nil
}

// DB returns the underlying database handle.
func (r *RecordRepo) DB() *sql.DB {
	return r.db
}
