package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index_builder.go -package=mocks quakeqa/internal/service IndexBuilder

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"quakeqa/internal/contextutil"
	"quakeqa/internal/indexer"
	"quakeqa/internal/rag"
)

// MaxQuestionLength bounds the question size in runes.
const MaxQuestionLength = 2000

// IndexBuilder produces the searchable index.
// This interface is defined from the service layer's perspective (consumer-first).
type IndexBuilder interface {
	// Exists reports whether a persisted index matching the current inputs is available.
	Exists(ctx context.Context) (bool, error)
	// Load restores the persisted index.
	Load(ctx context.Context) (*indexer.BuildReport, error)
	// Build creates the index from the dataset.
	Build(ctx context.Context) (*indexer.BuildReport, error)
}

// State is the lifecycle state of the Orchestrator.
type State int32

const (
	// StateUnbuilt means no index is available; queries fail with ErrNotReady.
	StateUnbuilt State = iota
	// StateReady means the index is built or loaded and queries are answered.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	default:
		return "unbuilt"
	}
}

// Status is a snapshot of the Orchestrator for health reporting.
type Status struct {
	State    State
	Building bool
	// LastError is the message of the most recent failed Start, if the index is still unbuilt.
	LastError string
	Report    *indexer.BuildReport
}

type startFailure struct {
	err error
}

// Orchestrator owns the build-once lifecycle of the index.
// It moves from StateUnbuilt to StateReady at most once and never back.
// One instance is created at startup and shared by every interface.
type Orchestrator struct {
	builder IndexBuilder
	engine  rag.Engine

	// mu serializes Start calls; a caller arriving during a build waits for it.
	mu       sync.Mutex
	state    atomic.Int32
	building atomic.Bool
	report   atomic.Pointer[indexer.BuildReport]
	failure  atomic.Pointer[startFailure]
}

// NewOrchestrator creates an Orchestrator in StateUnbuilt.
func NewOrchestrator(builder IndexBuilder, engine rag.Engine) *Orchestrator {
	return &Orchestrator{
		builder: builder,
		engine:  engine,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Ready reports whether queries can be answered.
func (o *Orchestrator) Ready() bool {
	return o.State() == StateReady
}

// Status returns a snapshot of the lifecycle without waiting for a running build.
func (o *Orchestrator) Status() Status {
	s := Status{
		State:    o.State(),
		Building: o.building.Load(),
		Report:   o.report.Load(),
	}
	if f := o.failure.Load(); f != nil && s.State == StateUnbuilt {
		s.LastError = f.err.Error()
	}
	return s
}

// Start makes the index available: it loads a persisted index when one matches the
// current inputs and builds one otherwise. Concurrent calls are serialized; a caller
// that waited on a build that succeeded returns that build's report.
// On failure the Orchestrator stays StateUnbuilt and Start may be called again.
func (o *Orchestrator) Start(ctx context.Context) (*indexer.BuildReport, error) {
	logger := contextutil.LoggerFromContext(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Ready() {
		return o.report.Load(), nil
	}

	o.building.Store(true)
	defer o.building.Store(false)

	report, err := o.prepare(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "index is not available", "error", err)
		o.failure.Store(&startFailure{err: err})
		return nil, err
	}

	o.report.Store(report)
	o.failure.Store(nil)
	o.state.Store(int32(StateReady))
	logger.InfoContext(ctx, "index ready",
		"loaded", report.Loaded,
		"segments", report.Segments,
		"index_version", report.IndexVersion,
	)
	return report, nil
}

func (o *Orchestrator) prepare(ctx context.Context) (*indexer.BuildReport, error) {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := o.builder.Exists(ctx)
	if err != nil {
		return nil, WrapError(err, "failed to check persisted index")
	}
	if exists {
		report, err := o.builder.Load(ctx)
		if err == nil {
			return report, nil
		}
		logger.WarnContext(ctx, "failed to load persisted index, rebuilding", "error", err)
	}

	return o.builder.Build(ctx)
}

// AnswerQuery answers a question from the index.
// It returns ErrNotReady until Start has succeeded and a *ValidationError for bad input.
func (o *Orchestrator) AnswerQuery(ctx context.Context, req rag.AskRequest) (*rag.AnswerRecord, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !o.Ready() {
		logger.WarnContext(ctx, "query before index is ready")
		return nil, ErrNotReady
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		logger.WarnContext(ctx, "empty question")
		return nil, &ValidationError{Field: "question", Message: "cannot be empty"}
	}
	if utf8.RuneCountInString(req.Question) > MaxQuestionLength {
		return nil, &ValidationError{Field: "question", Message: "is too long"}
	}
	if req.K < 0 || req.K > rag.MaxK {
		return nil, &ValidationError{Field: "k", Message: "must be between 0 and 20"}
	}
	if req.MinMagnitude != nil && *req.MinMagnitude < 0 {
		return nil, &ValidationError{Field: "min_magnitude", Message: "cannot be negative"}
	}

	return o.engine.Ask(ctx, req)
}
