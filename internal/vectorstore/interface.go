package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks quakeqa/internal/vectorstore VectorStore

import (
	"context"
	"errors"
)

// Filter keys understood by Search.
const (
	// FilterMinMagnitude keeps points whose "magnitude" payload is >= the given number.
	FilterMinMagnitude = "min_magnitude"
	// FilterRegion keeps points whose "region" payload contains the given text (case-insensitive).
	FilterRegion = "region"
)

// ErrCollectionNotFound is returned when a collection has not been created or loaded.
var ErrCollectionNotFound = errors.New("collection not found")

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchResult represents a search result from vector search.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection if missing and checks its vector size otherwise.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection holds a published index.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// DropCollection removes the collection and all of its points.
	DropCollection(ctx context.Context, collection string) error

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to k points ordered by descending cosine similarity.
	Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in the collection.
	Count(ctx context.Context, collection string) (int, error)
}

// Persistent is implemented by stores that keep their state in process memory
// and need an explicit save and restore around restarts.
type Persistent interface {
	Persist(ctx context.Context, collection string) error
	Load(ctx context.Context, collection string) error
}
