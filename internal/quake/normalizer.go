package quake

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DisplayTimeLayout is the date format used in normalized text.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// Normalize renders a Record as a TextUnit.
// Fields always appear in the same order: date, region, magnitude, depth, coordinates, type.
func Normalize(r Record) (TextUnit, error) {
	if err := validate(r); err != nil {
		return TextUnit{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Earthquake on %s in %s.", r.Time.UTC().Format(DisplayTimeLayout), strings.TrimSpace(r.Region))
	fmt.Fprintf(&b, " Magnitude: %s (Mw).", FormatNumber(r.Magnitude))
	fmt.Fprintf(&b, " Depth: %s km.", FormatNumber(r.DepthKm))
	fmt.Fprintf(&b, " Coordinates: latitude %s, longitude %s.", FormatNumber(r.Latitude), FormatNumber(r.Longitude))
	if t := strings.TrimSpace(r.EventType); t != "" {
		fmt.Fprintf(&b, " Event type: %s.", t)
	}

	return TextUnit{
		Text:     b.String(),
		Metadata: MetadataOf(r),
	}, nil
}

// FormatNumber prints v with the shortest representation that round-trips (7.8, not 7.800000).
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func validate(r Record) error {
	if r.Time.IsZero() {
		return &MissingFieldError{Source: r.Source, Field: FieldTime}
	}
	if strings.TrimSpace(r.Region) == "" {
		return &MissingFieldError{Source: r.Source, Field: FieldRegion}
	}

	numbers := []struct {
		field string
		value float64
	}{
		{FieldMagnitude, r.Magnitude},
		{FieldDepth, r.DepthKm},
		{FieldLatitude, r.Latitude},
		{FieldLongitude, r.Longitude},
	}
	for _, n := range numbers {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return &MissingFieldError{Source: r.Source, Field: n.field, Value: FormatNumber(n.value)}
		}
	}

	if r.Latitude < -90 || r.Latitude > 90 {
		return &MissingFieldError{Source: r.Source, Field: FieldLatitude, Value: FormatNumber(r.Latitude)}
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return &MissingFieldError{Source: r.Source, Field: FieldLongitude, Value: FormatNumber(r.Longitude)}
	}

	return nil
}
