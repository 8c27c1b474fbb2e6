package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BuildStore records which index build is published for each collection.
type BuildStore interface {
	Save(ctx context.Context, build *BuildRecord) error
	Get(ctx context.Context, collection string) (*BuildRecord, error)
	Delete(ctx context.Context, collection string) error
}

// BuildRepo provides methods for index build metadata.
type BuildRepo struct {
	db *sql.DB
}

// NewBuildRepo creates a new BuildRepo.
func NewBuildRepo(db *sql.DB) *BuildRepo {
	return &BuildRepo{db: db}
}

// Save inserts or replaces the build for build.Collection.
// A zero BuiltAt is set to the current time.
func (r *BuildRepo) Save(ctx context.Context, build *BuildRecord) error {
	if build.BuiltAt.IsZero() {
		build.BuiltAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO index_builds (collection, index_version, dataset_path, records, skipped, segments, embedding_model, dimension, built_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection) DO UPDATE SET
		 index_version = excluded.index_version, dataset_path = excluded.dataset_path,
		 records = excluded.records, skipped = excluded.skipped, segments = excluded.segments,
		 embedding_model = excluded.embedding_model, dimension = excluded.dimension, built_at = excluded.built_at`,
		build.Collection, build.IndexVersion, build.DatasetPath, build.Records, build.Skipped, build.Segments,
		build.EmbeddingModel, build.Dimension, build.BuiltAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save index build: %w", err)
	}
	return nil
}

// Get returns the build for a collection, or ErrNotFound.
func (r *BuildRepo) Get(ctx context.Context, collection string) (*BuildRecord, error) {
	var build BuildRecord
	var builtAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT collection, index_version, dataset_path, records, skipped, segments, embedding_model, dimension, built_at
		 FROM index_builds WHERE collection = ?`,
		collection,
	).Scan(&build.Collection, &build.IndexVersion, &build.DatasetPath, &build.Records, &build.Skipped,
		&build.Segments, &build.EmbeddingModel, &build.Dimension, &builtAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query index build: %w", err)
	}

	build.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built_at timestamp: %w", err)
	}

	return &build, nil
}

// Delete removes the build row for a collection. Deleting a missing row is not an error.
func (r *BuildRepo) Delete(ctx context.Context, collection string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM index_builds WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to delete index build: %w", err)
	}
	return nil
}
