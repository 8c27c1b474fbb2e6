package indexer

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"quakeqa/internal/config"
	"quakeqa/internal/quake"
)

// DefaultSeparators are tried in order: paragraph, line, word.
// When none fits inside the window the text is cut at the character limit.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// segmentNamespace seeds deterministic segment IDs.
var segmentNamespace = uuid.MustParse("6f1c3a52-8e0b-4d55-9a7e-2f4b1c9d3e70")

// Chunker splits TextUnits into overlapping Segments of bounded rune length.
type Chunker struct {
	maxSize    int
	overlap    int
	separators [][]rune
}

// NewChunker validates the chunking parameters.
// It returns a *config.ConfigError when maxSize <= 0 or overlap is outside [0, maxSize).
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, &config.ConfigError{Field: "CHUNK_SIZE", Message: fmt.Sprintf("must be greater than 0, got %d", maxSize)}
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, &config.ConfigError{Field: "CHUNK_OVERLAP", Message: fmt.Sprintf("must be in [0, %d), got %d", maxSize, overlap)}
	}

	separators := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		separators[i] = []rune(s)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap, separators: separators}, nil
}

// MaxSize returns the maximum segment length in runes.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the number of runes shared by consecutive segments.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every unit in order. Segments keep a copy of their unit's metadata.
func (c *Chunker) Split(units []quake.TextUnit) []quake.Segment {
	var segments []quake.Segment
	for _, unit := range units {
		for i, text := range c.SplitText(unit.Text) {
			segments = append(segments, quake.Segment{
				ID:       SegmentID(unit.Metadata.Source, i),
				Index:    i,
				Text:     text,
				Metadata: unit.Metadata,
			})
		}
	}
	return segments
}

// SplitText splits text into pieces of at most MaxSize runes.
// Every piece after the first starts with the last Overlap runes of the previous one,
// so dropping those runes and concatenating gives back the input.
func (c *Chunker) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.maxSize {
		return []string{text}
	}

	var pieces []string
	start, covered := 0, 0
	for n-start > c.maxSize {
		minCut := covered + 1
		if minCut < c.overlap {
			minCut = c.overlap
		}
		cut := c.findCut(runes, minCut, start+c.maxSize)
		pieces = append(pieces, string(runes[start:cut]))
		covered = cut
		start = cut - c.overlap
	}
	return append(pieces, string(runes[start:]))
}

// findCut returns the end of the last, coarsest separator ending within [minCut, limit],
// or limit when no separator qualifies.
func (c *Chunker) findCut(runes []rune, minCut, limit int) int {
	for _, sep := range c.separators {
		for end := limit; end >= minCut && end-len(sep) >= 0; end-- {
			if hasSeparatorAt(runes, end-len(sep), sep) {
				return end
			}
		}
	}
	return limit
}

func hasSeparatorAt(runes []rune, at int, sep []rune) bool {
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}

// SegmentID derives a stable UUID for the index-th segment of a record.
// UUIDs are required for Qdrant point IDs.
func SegmentID(source string, index int) string {
	return uuid.NewSHA1(segmentNamespace, []byte(source+"/"+strconv.Itoa(index))).String()
}
