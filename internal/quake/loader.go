package quake

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"quakeqa/internal/contextutil"
)

// fieldEventType is the optional column; it never produces a MissingFieldError.
const fieldEventType = "event_type"

// columnAliases lists accepted header names per field, in order of preference.
// Headers are compared after lowercasing and dropping everything but letters and digits,
// so "Der (km)" matches "derkm".
var columnAliases = map[string][]string{
	FieldTime:      {"olustarihi", "oluştarihi", "oluszamani", "oluşzamanı", "tarih", "datetime", "timestamp", "time", "date"},
	FieldLatitude:  {"enlem", "latitude", "lat"},
	FieldLongitude: {"boylam", "longitude", "lon", "lng", "long"},
	FieldMagnitude: {"mw", "magnitude", "mag", "buyukluk", "büyüklük", "ml", "md"},
	FieldDepth:     {"derkm", "derinlik", "derinlikkm", "depthkm", "depth"},
	FieldRegion:    {"yer", "region", "place", "location", "lokasyon"},
	fieldEventType: {"tip", "eventtype", "type"},
}

var requiredFields = []string{FieldTime, FieldLatitude, FieldLongitude, FieldMagnitude, FieldDepth, FieldRegion}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02/01/2006 15:04:05",
	"2006-01-02",
	"02.01.2006",
}

// LoadResult holds the records that passed validation and the rows that did not.
type LoadResult struct {
	Records []Record
	Skipped []*MissingFieldError
}

// LoadCSV reads a delimited dataset into typed Records.
// A zero delimiter means auto-detect from the header line (comma, semicolon or tab).
// Rows with a missing or unparsable required field are skipped and reported in LoadResult.Skipped.
func LoadCSV(ctx context.Context, path string, delimiter rune) (*LoadResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataLoadError{Path: path, Reason: "cannot read dataset file", Err: err}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if delimiter == 0 {
		delimiter = detectDelimiter(data)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DataLoadError{Path: path, Reason: "dataset is empty"}
		}
		return nil, &DataLoadError{Path: path, Reason: "cannot parse header", Err: err}
	}

	columns, missing := resolveColumns(header)
	if len(missing) > 0 {
		return nil, &DataLoadError{
			Path:   path,
			Reason: fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}

	base := filepath.Base(path)
	result := &LoadResult{}
	row := 0
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, &DataLoadError{Path: path, Reason: fmt.Sprintf("cannot parse row %d", row), Err: err}
		}
		if isBlank(fields) {
			continue
		}

		source := base + "#" + strconv.Itoa(row)
		record, ferr := parseRow(source, fields, columns)
		if ferr != nil {
			logger.DebugContext(ctx, "skipping dataset row", "source", source, "error", ferr)
			result.Skipped = append(result.Skipped, ferr)
			continue
		}
		result.Records = append(result.Records, record)
	}

	logger.InfoContext(ctx, "dataset loaded",
		"path", path,
		"records", len(result.Records),
		"skipped", len(result.Skipped),
		"delimiter", string(delimiter),
	)
	return result, nil
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveColumns maps field names to column indexes and reports required fields with no column.
func resolveColumns(header []string) (map[string]int, []string) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	columns := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[field] = i
				break
			}
		}
	}

	var missing []string
	for _, field := range requiredFields {
		if _, ok := columns[field]; !ok {
			missing = append(missing, field)
		}
	}
	return columns, missing
}

func parseRow(source string, fields []string, columns map[string]int) (Record, *MissingFieldError) {
	cell := func(field string) string {
		i, ok := columns[field]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}

	r := Record{
		Source:    source,
		Region:    cell(FieldRegion),
		EventType: cell(fieldEventType),
	}
	if r.Region == "" {
		return Record{}, &MissingFieldError{Source: source, Field: FieldRegion}
	}

	raw := cell(FieldTime)
	if raw == "" {
		return Record{}, &MissingFieldError{Source: source, Field: FieldTime}
	}
	t, ok := parseTime(raw)
	if !ok {
		return Record{}, &MissingFieldError{Source: source, Field: FieldTime, Value: raw}
	}
	r.Time = t

	numbers := []struct {
		field string
		dst   *float64
	}{
		{FieldMagnitude, &r.Magnitude},
		{FieldDepth, &r.DepthKm},
		{FieldLatitude, &r.Latitude},
		{FieldLongitude, &r.Longitude},
	}
	for _, n := range numbers {
		raw := cell(n.field)
		if raw == "" {
			return Record{}, &MissingFieldError{Source: source, Field: n.field}
		}
		v, err := parseNumber(raw)
		if err != nil {
			return Record{}, &MissingFieldError{Source: source, Field: n.field, Value: raw}
		}
		*n.dst = v
	}

	if err := validate(r); err != nil {
		var mfe *MissingFieldError
		if errors.As(err, &mfe) {
			return Record{}, mfe
		}
	}
	return r, nil
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumber accepts both "7.8" and the decimal comma form "7,8".
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return v, nil
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
