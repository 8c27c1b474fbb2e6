package quake

import "fmt"

// Required field names reported by MissingFieldError.
const (
	FieldTime      = "timestamp"
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldMagnitude = "magnitude"
	FieldDepth     = "depth"
	FieldRegion    = "region"
)

// DataLoadError is returned when the dataset cannot be used at all:
// the file is missing or unreadable, required columns are absent, or no row survived validation.
type DataLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to load dataset %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to load dataset %s: %s", e.Path, e.Reason)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports a single record whose required field is absent or unparsable.
type MissingFieldError struct {
	Source string
	Field  string
	// Value is the raw cell content, empty when the field was absent.
	Value string
}

func (e *MissingFieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("record %s: required field %s is missing", e.Source, e.Field)
	}
	return fmt.Sprintf("record %s: field %s has unparsable value %q", e.Source, e.Field, e.Value)
}
