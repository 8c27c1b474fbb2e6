package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SegmentRepo provides read access to indexed segments.
// Segments are written by RecordRepo.ReplaceAll together with their records.
type SegmentRepo struct {
	db *sql.DB
}

// NewSegmentRepo creates a new SegmentRepo.
func NewSegmentRepo(db *sql.DB) *SegmentRepo {
	return &SegmentRepo{db: db}
}

// ListBySource returns the segments of one record, ordered by chunk_index.
// Returns an empty slice if none exist (not an error).
func (r *SegmentRepo) ListBySource(ctx context.Context, source string) ([]*SegmentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, source, chunk_index, seq, text FROM segments WHERE source = ? ORDER BY chunk_index",
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	return scanSegments(rows)
}

// GetByID gets a segment by its ID. Returns ErrNotFound if not found.
func (r *SegmentRepo) GetByID(ctx context.Context, id string) (*SegmentRecord, error) {
	var seg SegmentRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, source, chunk_index, seq, text FROM segments WHERE id = ?",
		id,
	).Scan(&seg.ID, &seg.Source, &seg.ChunkIndex, &seg.Seq, &seg.Text)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query segment: %w", err)
	}

	return &seg, nil
}

// Texts returns every segment text in corpus order.
func (r *SegmentRepo) Texts(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT text FROM segments ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query segment texts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan segment text: %w", err)
		}
		texts = append(texts, text)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return texts, nil
}

// Count returns the number of segments.
func (r *SegmentRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segments").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to query segment count: %w", err)
	}
	return count, nil
}

func scanSegments(rows *sql.Rows) ([]*SegmentRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	segments := []*SegmentRecord{}
	for rows.Next() {
		var seg SegmentRecord
		if err := rows.Scan(&seg.ID, &seg.Source, &seg.ChunkIndex, &seg.Seq, &seg.Text); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, &seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return segments, nil
}
