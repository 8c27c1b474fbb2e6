package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"

	"quakeqa/internal/indexer"
	"quakeqa/internal/llm"
	"quakeqa/internal/quake"
	"quakeqa/internal/rag"
	"quakeqa/internal/service"
	"quakeqa/internal/service/mocks"
	"quakeqa/internal/vectorstore"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// stubEngine records the requests it receives.
type stubEngine struct {
	mu       sync.Mutex
	requests []rag.AskRequest
	record   *rag.AnswerRecord
	err      error
}

func (e *stubEngine) Ask(_ context.Context, req rag.AskRequest) (*rag.AnswerRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.err != nil {
		return nil, e.err
	}
	if e.record != nil {
		return e.record, nil
	}
	return &rag.AnswerRecord{Query: req.Question, Answer: "7.8", Evidence: []rag.Evidence{}}, nil
}

func TestOrchestrator_QueryBeforeReady(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := &stubEngine{}
	o := service.NewOrchestrator(mocks.NewMockIndexBuilder(ctrl), engine)

	if o.State() != service.StateUnbuilt {
		t.Fatalf("State() = %v, want unbuilt", o.State())
	}
	_, err := o.AnswerQuery(context.Background(), rag.AskRequest{Question: "largest quake?"})
	if !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("AnswerQuery() error = %v, want ErrNotReady", err)
	}
	if len(engine.requests) != 0 {
		t.Error("engine should not be called before the index is ready")
	}
}

func TestOrchestrator_StartBuildsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	report := &indexer.BuildReport{Records: 3, Segments: 3}
	builder.EXPECT().Exists(gomock.Any()).Return(false, nil).Times(1)
	builder.EXPECT().Build(gomock.Any()).Return(report, nil).Times(1)

	o := service.NewOrchestrator(builder, &stubEngine{})
	ctx := context.Background()

	got, err := o.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got != report {
		t.Errorf("Start() report = %+v, want %+v", got, report)
	}
	if !o.Ready() {
		t.Fatal("Ready() = false after Start")
	}

	// Later calls do not rebuild.
	again, err := o.Start(ctx)
	if err != nil || again != report {
		t.Errorf("second Start() = %v, %v", again, err)
	}
	if s := o.Status(); s.State != service.StateReady || s.Building || s.Report != report {
		t.Errorf("Status() = %+v", s)
	}
}

func TestOrchestrator_StartLoadsPersistedIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	report := &indexer.BuildReport{Segments: 3, Loaded: true}
	builder.EXPECT().Exists(gomock.Any()).Return(true, nil)
	builder.EXPECT().Load(gomock.Any()).Return(report, nil)

	o := service.NewOrchestrator(builder, &stubEngine{})
	got, err := o.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !got.Loaded {
		t.Error("report.Loaded = false, want true")
	}
}

func TestOrchestrator_StartRebuildsWhenLoadFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	gomock.InOrder(
		builder.EXPECT().Exists(gomock.Any()).Return(true, nil),
		builder.EXPECT().Load(gomock.Any()).Return(nil, errors.New("corrupt index file")),
		builder.EXPECT().Build(gomock.Any()).Return(&indexer.BuildReport{Segments: 3}, nil),
	)

	o := service.NewOrchestrator(builder, &stubEngine{})
	if _, err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !o.Ready() {
		t.Error("Ready() = false after rebuild")
	}
}

func TestOrchestrator_FailedStartCanBeRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	loadErr := &quake.DataLoadError{Path: "quakes.csv", Reason: "cannot read dataset file"}
	gomock.InOrder(
		builder.EXPECT().Exists(gomock.Any()).Return(false, nil),
		builder.EXPECT().Build(gomock.Any()).Return(nil, loadErr),
		builder.EXPECT().Exists(gomock.Any()).Return(false, nil),
		builder.EXPECT().Build(gomock.Any()).Return(&indexer.BuildReport{Segments: 1}, nil),
	)

	o := service.NewOrchestrator(builder, &stubEngine{})
	ctx := context.Background()

	_, err := o.Start(ctx)
	var dle *quake.DataLoadError
	if !errors.As(err, &dle) {
		t.Fatalf("Start() error = %v, want *quake.DataLoadError", err)
	}
	if o.Ready() {
		t.Fatal("Ready() = true after failed build")
	}
	if s := o.Status(); s.LastError == "" {
		t.Error("Status().LastError is empty after failed build")
	}
	if _, err := o.AnswerQuery(ctx, rag.AskRequest{Question: "q"}); !errors.Is(err, service.ErrNotReady) {
		t.Errorf("AnswerQuery() error = %v, want ErrNotReady", err)
	}

	if _, err := o.Start(ctx); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if s := o.Status(); !o.Ready() || s.LastError != "" {
		t.Errorf("Status() after retry = %+v", s)
	}
}

func TestOrchestrator_ExistsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	storeErr := errors.New("qdrant unavailable")
	builder.EXPECT().Exists(gomock.Any()).Return(false, storeErr)

	o := service.NewOrchestrator(builder, &stubEngine{})
	if _, err := o.Start(context.Background()); !errors.Is(err, storeErr) {
		t.Errorf("Start() error = %v, want wrapped %v", err, storeErr)
	}
}

func TestOrchestrator_ConcurrentStartBuildsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	release := make(chan struct{})
	entered := make(chan struct{})
	report := &indexer.BuildReport{Segments: 3}

	builder.EXPECT().Exists(gomock.Any()).Return(false, nil).Times(1)
	builder.EXPECT().Build(gomock.Any()).DoAndReturn(func(context.Context) (*indexer.BuildReport, error) {
		close(entered)
		<-release
		return report, nil
	}).Times(1)

	o := service.NewOrchestrator(builder, &stubEngine{})
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*indexer.BuildReport, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = o.Start(ctx)
	}()
	<-entered

	if !o.Status().Building {
		t.Error("Status().Building = false during build")
	}
	if _, err := o.AnswerQuery(ctx, rag.AskRequest{Question: "q"}); !errors.Is(err, service.ErrNotReady) {
		t.Errorf("AnswerQuery() during build error = %v, want ErrNotReady", err)
	}

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Start(ctx)
		}(i)
	}
	close(release)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Errorf("caller %d: Start() error = %v", i, errs[i])
		}
		if results[i] != report {
			t.Errorf("caller %d: report = %+v, want the single build's report", i, results[i])
		}
	}
}

func TestOrchestrator_AnswerQueryValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	builder.EXPECT().Exists(gomock.Any()).Return(true, nil)
	builder.EXPECT().Load(gomock.Any()).Return(&indexer.BuildReport{Loaded: true}, nil)

	engine := &stubEngine{}
	o := service.NewOrchestrator(builder, engine)
	ctx := context.Background()
	if _, err := o.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	negative := -1.0
	tests := []struct {
		name      string
		req       rag.AskRequest
		wantField string
	}{
		{name: "empty question", req: rag.AskRequest{Question: ""}, wantField: "question"},
		{name: "blank question", req: rag.AskRequest{Question: " \t\n"}, wantField: "question"},
		{name: "negative k", req: rag.AskRequest{Question: "q", K: -1}, wantField: "k"},
		{name: "k too large", req: rag.AskRequest{Question: "q", K: rag.MaxK + 1}, wantField: "k"},
		{name: "negative magnitude", req: rag.AskRequest{Question: "q", MinMagnitude: &negative}, wantField: "min_magnitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.AnswerQuery(ctx, tt.req)
			var vErr *service.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("AnswerQuery() error = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
	if len(engine.requests) != 0 {
		t.Errorf("engine called %d times for invalid input", len(engine.requests))
	}

	record, err := o.AnswerQuery(ctx, rag.AskRequest{Question: "  largest quake?  ", K: 5})
	if err != nil {
		t.Fatalf("AnswerQuery() error = %v", err)
	}
	if record.Answer != "7.8" {
		t.Errorf("Answer = %q", record.Answer)
	}
	if engine.requests[0].Question != "largest quake?" || engine.requests[0].K != 5 {
		t.Errorf("engine request = %+v", engine.requests[0])
	}
}

func TestOrchestrator_EngineErrorsPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	builder := mocks.NewMockIndexBuilder(ctrl)
	builder.EXPECT().Exists(gomock.Any()).Return(false, nil)
	builder.EXPECT().Build(gomock.Any()).Return(&indexer.BuildReport{}, nil)

	engine := &stubEngine{err: &llm.GenerationTimeoutError{}}
	o := service.NewOrchestrator(builder, engine)
	ctx := context.Background()
	if _, err := o.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err := o.AnswerQuery(ctx, rag.AskRequest{Question: "q"})
	var timeoutErr *llm.GenerationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("AnswerQuery() error = %v, want *llm.GenerationTimeoutError", err)
	}
	// A failed query leaves the index ready.
	if !o.Ready() {
		t.Error("Ready() = false after query failure")
	}
}

func TestOrchestrator_MissingDatasetLeavesUnbuilt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	indexDir := filepath.Join(dir, "index")

	chunker, err := indexer.NewChunker(1000, 200)
	if err != nil {
		t.Fatalf("NewChunker() error = %v", err)
	}
	embedder, err := llm.NewHashEmbedder(64)
	if err != nil {
		t.Fatalf("NewHashEmbedder() error = %v", err)
	}
	store := vectorstore.NewMemoryStore(indexDir)
	pipeline := indexer.NewPipeline(chunker, embedder, store, nil, nil, nil, indexer.Options{
		DatasetPath:    filepath.Join(dir, "absent.csv"),
		Collection:     "earthquakes",
		EmbeddingModel: llm.ModelHash,
	})
	retriever := rag.NewRetriever(embedder, store, pipeline.Collection(), 3)
	answerer := rag.NewAnswerer(&stubGenerator{}, rag.AnswererOptions{Sentinel: "not present"})

	o := service.NewOrchestrator(pipeline, rag.NewEngine(retriever, answerer))

	_, err = o.Start(ctx)
	var dle *quake.DataLoadError
	if !errors.As(err, &dle) {
		t.Fatalf("Start() error = %v, want *quake.DataLoadError", err)
	}
	if o.State() != service.StateUnbuilt {
		t.Errorf("State() = %v, want unbuilt", o.State())
	}
	if exists, _ := store.CollectionExists(ctx, "earthquakes"); exists {
		t.Error("collection exists after failed build")
	}
	if entries, _ := os.ReadDir(indexDir); len(entries) != 0 {
		t.Errorf("index directory has %d entries after failed build", len(entries))
	}
}

type stubGenerator struct{}

func (stubGenerator) ChatWithMessages(context.Context, []llm.Message, llm.ChatParams) (string, error) {
	return "not present", nil
}
