package storage

import "time"

// QuakeRecord is a validated dataset row together with its normalized text.
type QuakeRecord struct {
	Source     string // "<file>#<row>", unique
	Seq        int    // Position in dataset order
	OccurredAt time.Time
	Latitude   float64
	Longitude  float64
	Magnitude  float64
	DepthKm    float64
	Region     string
	EventType  string
	Text       string // Normalized text unit
}

// SegmentRecord is one chunk of a record's text, keyed by its vector point ID.
type SegmentRecord struct {
	ID         string // Same as the vector point ID
	Source     string // Foreign key to records.source
	ChunkIndex int    // Index within the record (starts at 0)
	Seq        int    // Position in corpus order
	Text       string
}

// BuildRecord describes the last successful index build for a collection.
type BuildRecord struct {
	Collection     string
	IndexVersion   string
	DatasetPath    string
	Records        int
	Skipped        int
	Segments       int
	EmbeddingModel string
	Dimension      int
	BuiltAt        time.Time
}
