package indexer

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"quakeqa/internal/config"
	"quakeqa/internal/quake"
)

// reconstruct joins pieces after dropping the overlap prefix of every piece but the first.
func reconstruct(pieces []string, overlap int) string {
	var b strings.Builder
	for i, p := range pieces {
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(string([]rune(p)[overlap:]))
	}
	return b.String()
}

func TestNewChunker(t *testing.T) {
	tests := []struct {
		name      string
		maxSize   int
		overlap   int
		wantErr   bool
		wantField string
	}{
		{name: "defaults", maxSize: 1000, overlap: 200},
		{name: "no overlap", maxSize: 10, overlap: 0},
		{name: "overlap equals size", maxSize: 100, overlap: 100, wantErr: true, wantField: "CHUNK_OVERLAP"},
		{name: "overlap larger than size", maxSize: 100, overlap: 150, wantErr: true, wantField: "CHUNK_OVERLAP"},
		{name: "negative overlap", maxSize: 100, overlap: -1, wantErr: true, wantField: "CHUNK_OVERLAP"},
		{name: "zero size", maxSize: 0, overlap: 0, wantErr: true, wantField: "CHUNK_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.maxSize, tt.overlap)
			if tt.wantErr {
				var cfgErr *config.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("NewChunker() error = %v, want *config.ConfigError", err)
				}
				if cfgErr.Field != tt.wantField {
					t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChunker() unexpected error = %v", err)
			}
			if c.MaxSize() != tt.maxSize || c.Overlap() != tt.overlap {
				t.Errorf("NewChunker() = (%d, %d), want (%d, %d)", c.MaxSize(), c.Overlap(), tt.maxSize, tt.overlap)
			}
		})
	}
}

func TestChunker_SplitText_Reconstruction(t *testing.T) {
	paragraphs := "Date: 2023-02-06 01:17:34. Location: Pazarcik (Kahramanmaras).\n\n" +
		"Magnitude: 7.8 (Mw). Depth: 8.6 km.\nCoordinates: latitude 37.288, longitude 37.043.\n\n" +
		"Event type: Ke. Aftershocks continued for weeks across the region."

	tests := []struct {
		name    string
		text    string
		maxSize int
		overlap int
	}{
		{name: "paragraphs", text: paragraphs, maxSize: 60, overlap: 10},
		{name: "paragraphs no overlap", text: paragraphs, maxSize: 60, overlap: 0},
		{name: "lines only", text: strings.Repeat("line of text\n", 20), maxSize: 40, overlap: 5},
		{name: "words only", text: strings.Repeat("word ", 100), maxSize: 23, overlap: 7},
		{name: "no separators", text: strings.Repeat("x", 250), maxSize: 50, overlap: 20},
		{name: "multibyte runes", text: strings.Repeat("Oluş tarihi büyüklük derinlik ", 12), maxSize: 37, overlap: 9},
		{name: "large overlap", text: strings.Repeat("abc def ", 40), maxSize: 12, overlap: 11},
		{name: "short text", text: "Magnitude 7.8", maxSize: 1000, overlap: 200},
		{name: "exactly max size", text: strings.Repeat("y", 30), maxSize: 30, overlap: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.maxSize, tt.overlap)
			if err != nil {
				t.Fatalf("NewChunker() error = %v", err)
			}

			pieces := c.SplitText(tt.text)
			if len(pieces) == 0 {
				t.Fatal("SplitText() returned no pieces")
			}

			if got := reconstruct(pieces, tt.overlap); got != tt.text {
				t.Errorf("reconstruction mismatch:\n got: %q\nwant: %q", got, tt.text)
			}

			for i, p := range pieces {
				if n := utf8.RuneCountInString(p); n > tt.maxSize {
					t.Errorf("piece %d has %d runes, max %d", i, n, tt.maxSize)
				}
				if i > 0 {
					prev := []rune(pieces[i-1])
					cur := []rune(p)
					if string(prev[len(prev)-tt.overlap:]) != string(cur[:tt.overlap]) {
						t.Errorf("piece %d does not start with the last %d runes of piece %d", i, tt.overlap, i-1)
					}
				}
			}

			if utf8.RuneCountInString(tt.text) <= tt.maxSize && len(pieces) != 1 {
				t.Errorf("text within max size produced %d pieces, want 1", len(pieces))
			}
		})
	}
}

func TestChunker_SplitText_PrefersCoarseSeparators(t *testing.T) {
	c, err := NewChunker(40, 0)
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	text := "first paragraph here\n\nsecond line one\nsecond line two"
	pieces := c.SplitText(text)

	if pieces[0] != "first paragraph here\n\n" {
		t.Errorf("first piece = %q, want cut after the paragraph break", pieces[0])
	}
}

func TestChunker_SplitText_Empty(t *testing.T) {
	c, _ := NewChunker(10, 2)
	if pieces := c.SplitText(""); len(pieces) != 0 {
		t.Errorf("SplitText(\"\") = %v, want no pieces", pieces)
	}
}

func TestChunker_Split(t *testing.T) {
	c, err := NewChunker(30, 5)
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}

	units := []quake.TextUnit{
		{Text: "short record text", Metadata: quake.Metadata{Source: "veriler.csv#1", Magnitude: 7.8}},
		{Text: strings.Repeat("longer record text ", 5), Metadata: quake.Metadata{Source: "veriler.csv#2", Magnitude: 4.1}},
	}

	segments := c.Split(units)
	if len(segments) < 3 {
		t.Fatalf("Split() returned %d segments, want at least 3", len(segments))
	}

	first := segments[0]
	if first.Index != 0 || first.Metadata.Source != "veriler.csv#1" || first.Text != units[0].Text {
		t.Errorf("first segment = %+v", first)
	}
	if first.ID != SegmentID("veriler.csv#1", 0) {
		t.Errorf("first segment ID = %q, want deterministic ID", first.ID)
	}

	seen := make(map[string]bool)
	for i, s := range segments[1:] {
		if s.Metadata.Source != "veriler.csv#2" || s.Metadata.Magnitude != 4.1 {
			t.Errorf("segment %d lost its metadata: %+v", i+1, s.Metadata)
		}
		if s.Index != i {
			t.Errorf("segment %d index = %d, want %d", i+1, s.Index, i)
		}
		if seen[s.ID] {
			t.Errorf("duplicate segment ID %q", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestSegmentID_Stable(t *testing.T) {
	a := SegmentID("veriler.csv#10", 2)
	b := SegmentID("veriler.csv#10", 2)
	c := SegmentID("veriler.csv#10", 3)

	if a != b {
		t.Errorf("SegmentID() not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("SegmentID() collision for different indexes: %q", a)
	}
}
