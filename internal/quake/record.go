package quake

import "time"

// Record is one historical seismic event as read from the dataset.
// Records are produced by LoadCSV and never modified afterwards.
type Record struct {
	// Source is the stable identifier of the row ("<file>#<row>").
	Source    string
	Time      time.Time
	Latitude  float64
	Longitude float64
	Magnitude float64
	DepthKm   float64
	Region    string
	// EventType is optional (e.g. "Ke" for earthquake in AFAD exports).
	EventType string
}

// Metadata is copied from a Record onto every TextUnit and Segment derived from it.
type Metadata struct {
	Source    string    `json:"source"`
	Time      time.Time `json:"time"`
	Magnitude float64   `json:"magnitude"`
	DepthKm   float64   `json:"depth_km"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Region    string    `json:"region"`
	EventType string    `json:"event_type,omitempty"`
}

// TextUnit is the canonical text rendering of exactly one Record.
type TextUnit struct {
	Text     string
	Metadata Metadata
}

// Segment is a bounded slice of a TextUnit's text.
type Segment struct {
	// ID is deterministic for (source, index) so rebuilding yields the same IDs.
	ID string
	// Index is the position of the segment within its TextUnit, starting at 0.
	Index    int
	Text     string
	Metadata Metadata
}

// MetadataOf returns the metadata carried by everything derived from r.
func MetadataOf(r Record) Metadata {
	return Metadata{
		Source:    r.Source,
		Time:      r.Time,
		Magnitude: r.Magnitude,
		DepthKm:   r.DepthKm,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Region:    r.Region,
		EventType: r.EventType,
	}
}

// Record rebuilds the Record a piece of metadata was derived from.
func (m Metadata) Record() Record {
	return Record{
		Source:    m.Source,
		Time:      m.Time,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Magnitude: m.Magnitude,
		DepthKm:   m.DepthKm,
		Region:    m.Region,
		EventType: m.EventType,
	}
}
