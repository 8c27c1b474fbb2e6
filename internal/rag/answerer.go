package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/llm"
	"quakeqa/internal/quake"
)

// AnswererOptions configures an Answerer.
type AnswererOptions struct {
	// Sentinel is the exact reply for questions the context cannot answer.
	Sentinel    string
	Temperature float32
	MaxTokens   int
	// Timeout bounds a single generation call; zero means no limit.
	Timeout time.Duration
	// MinScore drops segments scoring at or below it before prompting.
	MinScore float32
}

// Answerer asks the generation model to answer from retrieved segments only.
type Answerer struct {
	generator llm.Generator
	opts      AnswererOptions
}

// NewAnswerer creates an Answerer.
func NewAnswerer(generator llm.Generator, opts AnswererOptions) *Answerer {
	return &Answerer{generator: generator, opts: opts}
}

// Sentinel returns the not-found reply.
func (a *Answerer) Sentinel() string {
	return a.opts.Sentinel
}

// Answer produces an AnswerRecord for query from the retrieved segments.
// When no segment clears MinScore the sentinel is returned without calling the model.
// Model failures are returned as *llm.GenerationTimeoutError or *llm.GenerationProviderError.
func (a *Answerer) Answer(ctx context.Context, query string, result *RetrievalResult) (*AnswerRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var grounded []ScoredSegment
	if result != nil {
		for _, s := range result.Segments {
			if s.Score > a.opts.MinScore {
				grounded = append(grounded, s)
			}
		}
	}

	if len(grounded) == 0 {
		logger.InfoContext(ctx, "no relevant segments, answering with sentinel")
		return &AnswerRecord{
			Query:    query,
			Answer:   a.opts.Sentinel,
			Evidence: []Evidence{},
			NotFound: true,
		}, nil
	}

	messages := buildMessages(query, grounded, a.opts.Sentinel)
	logger.DebugContext(ctx, "LLM messages",
		"system_prompt", messages[0].Content,
		"user_message_length", len(messages[1].Content),
		"segments", len(grounded),
	)

	callCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	reply, err := a.generator.ChatWithMessages(callCtx, messages, llm.ChatParams{
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to get LLM response", "error", err)
		return nil, a.classify(ctx, callCtx, err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, &llm.GenerationProviderError{Provider: "generator", Err: errors.New("empty completion")}
	}

	record := &AnswerRecord{
		Query:    query,
		Answer:   reply,
		Evidence: evidenceOf(grounded),
	}
	if isSentinel(reply, a.opts.Sentinel) {
		record.Answer = a.opts.Sentinel
		record.NotFound = true
	}

	logger.InfoContext(ctx, "received LLM response", "answer_length", len(reply), "not_found", record.NotFound)
	return record, nil
}

// classify maps a generator failure onto the generation error types.
func (a *Answerer) classify(parent, callCtx context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("generation aborted: %w", parent.Err())
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &llm.GenerationTimeoutError{Timeout: a.opts.Timeout, Err: err}
	}
	var provErr *llm.GenerationProviderError
	if errors.As(err, &provErr) {
		return err
	}
	return &llm.GenerationProviderError{Provider: "generator", Err: err}
}

// buildMessages constructs the grounded prompt: rules and sentinel in the system
// message, numbered context and the question in the user message.
func buildMessages(query string, segments []ScoredSegment, sentinel string) []llm.Message {
	systemPrompt := "You answer questions about historical earthquakes using only the numbered context records provided. " +
		"Rules:\n" +
		"1. Use only facts stated in the context records. Do not use outside knowledge.\n" +
		fmt.Sprintf("2. If the context does not contain the answer, reply with exactly: %s\n", sentinel) +
		"3. Never add dates, magnitudes, depths, places or other facts that are not in the context.\n" +
		"Cite the records you used by their number, for example [1]."

	var b strings.Builder
	b.WriteString("--- Context records ---\n\n")
	for i, s := range segments {
		md := s.Segment.Metadata
		fmt.Fprintf(&b, "[%d] Source: %s | Magnitude: %s | Region: %s\n", i+1, md.Source, quake.FormatNumber(md.Magnitude), md.Region)
		fmt.Fprintf(&b, "%s\n\n", s.Segment.Text)
	}
	b.WriteString("--- End context ---\n\n")
	fmt.Fprintf(&b, "Question: %s", query)

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func evidenceOf(segments []ScoredSegment) []Evidence {
	evidence := make([]Evidence, 0, len(segments))
	for i, s := range segments {
		md := s.Segment.Metadata
		evidence = append(evidence, Evidence{
			CitationID: i + 1,
			Text:       s.Segment.Text,
			Magnitude:  md.Magnitude,
			Source:     md.Source,
			Region:     md.Region,
			Time:       md.Time,
			SegmentID:  s.Segment.ID,
			Score:      s.Score,
		})
	}
	return evidence
}

// isSentinel reports whether reply is the sentinel, ignoring case, surrounding
// quotes and trailing punctuation.
func isSentinel(reply, sentinel string) bool {
	return normalizeReply(reply) == normalizeReply(sentinel)
}

func normalizeReply(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
