package indexer

import (
	"fmt"
	"time"

	"quakeqa/internal/quake"
)

// Payload keys stored with every vector point.
const (
	PayloadSource     = "source"
	PayloadChunkIndex = "chunk_index"
	PayloadSeq        = "seq"
	PayloadText       = "text"
	PayloadTime       = "time"
	PayloadMagnitude  = "magnitude"
	PayloadDepthKm    = "depth_km"
	PayloadLatitude   = "latitude"
	PayloadLongitude  = "longitude"
	PayloadRegion     = "region"
	PayloadEventType  = "event_type"
)

// SegmentPayload flattens a segment into vector point metadata.
// seq is the segment's position in corpus order and breaks score ties at query time.
func SegmentPayload(seg quake.Segment, seq int) map[string]any {
	return map[string]any{
		PayloadSource:     seg.Metadata.Source,
		PayloadChunkIndex: seg.Index,
		PayloadSeq:        seq,
		PayloadText:       seg.Text,
		PayloadTime:       seg.Metadata.Time.UTC().Format(time.RFC3339),
		PayloadMagnitude:  seg.Metadata.Magnitude,
		PayloadDepthKm:    seg.Metadata.DepthKm,
		PayloadLatitude:   seg.Metadata.Latitude,
		PayloadLongitude:  seg.Metadata.Longitude,
		PayloadRegion:     seg.Metadata.Region,
		PayloadEventType:  seg.Metadata.EventType,
	}
}

// SegmentFromPayload rebuilds a segment and its corpus position from point metadata.
// Numbers may come back as int, int64 or float64 depending on the store.
func SegmentFromPayload(id string, meta map[string]any) (quake.Segment, int, error) {
	text, ok := meta[PayloadText].(string)
	if !ok {
		return quake.Segment{}, 0, fmt.Errorf("point %s has no text payload", id)
	}
	source, _ := meta[PayloadSource].(string)
	region, _ := meta[PayloadRegion].(string)
	eventType, _ := meta[PayloadEventType].(string)

	var when time.Time
	if raw, ok := meta[PayloadTime].(string); ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return quake.Segment{}, 0, fmt.Errorf("point %s has invalid time %q: %w", id, raw, err)
		}
		when = t
	}

	seg := quake.Segment{
		ID:    id,
		Index: int(number(meta[PayloadChunkIndex])),
		Text:  text,
		Metadata: quake.Metadata{
			Source:    source,
			Time:      when,
			Magnitude: number(meta[PayloadMagnitude]),
			DepthKm:   number(meta[PayloadDepthKm]),
			Latitude:  number(meta[PayloadLatitude]),
			Longitude: number(meta[PayloadLongitude]),
			Region:    region,
			EventType: eventType,
		},
	}
	return seg, int(number(meta[PayloadSeq])), nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		return 0
	}
}
