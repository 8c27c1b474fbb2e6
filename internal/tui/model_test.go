package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"quakeqa/internal/indexer"
	"quakeqa/internal/llm"
	"quakeqa/internal/quake"
	"quakeqa/internal/rag"
	"quakeqa/internal/service"
)

type fakePort struct {
	startErr error
	record   *rag.AnswerRecord
	askErr   error
	asked    []string
}

func (f *fakePort) Start(context.Context) (*indexer.BuildReport, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &indexer.BuildReport{Segments: 3, Loaded: true}, nil
}

func (f *fakePort) AnswerQuery(_ context.Context, req rag.AskRequest) (*rag.AnswerRecord, error) {
	f.asked = append(f.asked, req.Question)
	return f.record, f.askErr
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update() returned %T, want Model", next)
	}
	return model, cmd
}

func typeQuestion(t *testing.T, m Model, q string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(q)})
	return m
}

func started(t *testing.T, port *fakePort) Model {
	t.Helper()
	m := New(context.Background(), port)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, m.start()())
	return m
}

func TestModel_StartupAndAnswer(t *testing.T) {
	port := &fakePort{record: &rag.AnswerRecord{
		Answer: "The largest was magnitude 7.8 [1].",
		Evidence: []rag.Evidence{{
			CitationID: 1, Source: "quakes.csv#1", Magnitude: 7.8, Region: "Pazarcik",
		}},
	}}
	m := started(t, port)

	if !m.indexed || m.busy {
		t.Fatalf("model not ready after start: indexed=%v busy=%v", m.indexed, m.busy)
	}
	if !strings.Contains(m.status, "Loaded index with 3 segments") {
		t.Errorf("status = %q", m.status)
	}

	m = typeQuestion(t, m, "largest quake?")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil || !m.busy {
		t.Fatal("Enter should start a query")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	m, _ = update(t, m, m.ask("largest quake?")())
	if len(port.asked) != 1 || port.asked[0] != "largest quake?" {
		t.Errorf("asked = %v", port.asked)
	}

	// greeting, question, answer
	if len(m.history) != 3 {
		t.Fatalf("history has %d turns, want 3", len(m.history))
	}
	last := m.history[2]
	if last.role != roleAssistant || !strings.Contains(last.text, "7.8") || len(last.sources) != 1 {
		t.Errorf("unexpected answer turn: %+v", last)
	}

	rendered := renderHistory(m.history, 100)
	for _, want := range []string{greeting, "largest quake?", "[1] quakes.csv#1", "M" + quake.FormatNumber(7.8)} {
		if !strings.Contains(rendered, want) {
			t.Errorf("history does not contain %q", want)
		}
	}
}

func TestModel_QueryErrorsAreInline(t *testing.T) {
	port := &fakePort{askErr: &llm.GenerationTimeoutError{}}
	m := started(t, port)

	m = typeQuestion(t, m, "largest quake?")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, cmd := update(t, m, m.ask("largest quake?")())

	if cmd != nil {
		t.Error("a query error should not end the program")
	}
	last := m.history[len(m.history)-1]
	if last.role != roleError || !strings.Contains(last.text, "took too long") {
		t.Errorf("unexpected error turn: %+v", last)
	}
	if m.busy {
		t.Error("model still busy after error")
	}
}

func TestModel_StartupFailureQuits(t *testing.T) {
	loadErr := &quake.DataLoadError{Path: "quakes.csv", Reason: "cannot read dataset file"}
	m := New(context.Background(), &fakePort{startErr: loadErr})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m, cmd := update(t, m, m.start()())
	if cmd == nil {
		t.Fatal("startup failure should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command is not tea.Quit")
	}
	if !errors.Is(m.Err(), loadErr) {
		t.Errorf("Err() = %v, want %v", m.Err(), loadErr)
	}
	if m.View() != "" {
		t.Error("View() should be empty after a fatal error")
	}
}

func TestModel_EnterWhileBuilding(t *testing.T) {
	port := &fakePort{}
	m := New(context.Background(), port)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	m = typeQuestion(t, m, "largest quake?")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("no query should start before the index is ready")
	}
	if !strings.Contains(m.status, "Still preparing") {
		t.Errorf("status = %q", m.status)
	}
	if m.input.Value() != "largest quake?" {
		t.Error("question should stay in the input box")
	}
}

func TestFriendlyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{service.ErrNotReady, "not ready"},
		{&service.ValidationError{Field: "question", Message: "is too long"}, "is too long"},
		{&llm.EmbeddingProviderError{Provider: "http", Err: errors.New("503")}, "unavailable"},
		{&llm.GenerationProviderError{Provider: "openai", Err: errors.New("401")}, "unavailable"},
		{errors.New("disk full"), "disk full"},
	}
	for _, tt := range tests {
		if got := friendlyError(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("friendlyError(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
