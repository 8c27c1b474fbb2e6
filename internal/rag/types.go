package rag

import (
	"time"

	"quakeqa/internal/quake"
)

// AskRequest represents a RAG query request.
type AskRequest struct {
	// Question is the user's question to answer.
	Question string `json:"question"`
	// K optionally overrides the configured number of segments to retrieve.
	K int `json:"k,omitempty"`
	// MinMagnitude optionally restricts retrieval to events of at least this magnitude.
	MinMagnitude *float64 `json:"min_magnitude,omitempty"`
	// Region optionally restricts retrieval to regions containing this text.
	Region string `json:"region,omitempty"`
}

// RetrieveOptions narrows a single retrieval.
type RetrieveOptions struct {
	K            int
	MinMagnitude *float64
	Region       string
}

// ScoredSegment is a retrieved segment with its cosine similarity to the query.
type ScoredSegment struct {
	Segment quake.Segment
	Score   float32
	// Seq is the segment's position in corpus order; it breaks score ties.
	Seq int
}

// RetrievalResult holds the top segments for one query, best first.
type RetrievalResult struct {
	Query    string
	Segments []ScoredSegment
}

// Evidence is a segment that was given to the model as grounding context.
type Evidence struct {
	// CitationID is the 1-based number the segment carried in the prompt.
	CitationID int       `json:"citation_id"`
	Text       string    `json:"text"`
	Magnitude  float64   `json:"magnitude"`
	Source     string    `json:"source"`
	Region     string    `json:"region"`
	Time       time.Time `json:"time"`
	SegmentID  string    `json:"segment_id"`
	Score      float32   `json:"score"`
}

// AnswerRecord is the result of answering one query.
type AnswerRecord struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
	// Evidence lists the segments the answer was grounded on, in citation order.
	Evidence []Evidence `json:"evidence"`
	// NotFound is true when the answer is the not-found sentinel.
	NotFound bool `json:"not_found"`
}
