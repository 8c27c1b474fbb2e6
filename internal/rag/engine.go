package rag

import (
	"context"

	"quakeqa/internal/contextutil"
)

// Engine provides RAG (Retrieval-Augmented Generation) functionality.
type Engine interface {
	// Ask answers a question by retrieving relevant segments and generating a grounded answer.
	Ask(ctx context.Context, req AskRequest) (*AnswerRecord, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	retriever *Retriever
	answerer  *Answerer
}

// NewEngine creates a new RAG engine.
func NewEngine(retriever *Retriever, answerer *Answerer) Engine {
	return &ragEngine{
		retriever: retriever,
		answerer:  answerer,
	}
}

// Ask answers a question using RAG. Each call is independent of earlier ones.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (*AnswerRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "RAG query started",
		"question", req.Question,
		"k", req.K,
		"region", req.Region,
	)

	result, err := e.retriever.Retrieve(ctx, req.Question, RetrieveOptions{
		K:            req.K,
		MinMagnitude: req.MinMagnitude,
		Region:       req.Region,
	})
	if err != nil {
		return nil, err
	}

	record, err := e.answerer.Answer(ctx, result.Query, result)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "RAG query completed",
		"question_length", len(req.Question),
		"segments_used", len(record.Evidence),
		"answer_length", len(record.Answer),
		"not_found", record.NotFound,
	)
	return record, nil
}
