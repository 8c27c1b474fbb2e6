package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"quakeqa/internal/indexer"
	"quakeqa/internal/llm"
	"quakeqa/internal/quake"
	"quakeqa/internal/rag"
	"quakeqa/internal/service"
)

// Port is the TUI-facing subset of the orchestrator.
type Port interface {
	Start(ctx context.Context) (*indexer.BuildReport, error)
	AnswerQuery(ctx context.Context, req rag.AskRequest) (*rag.AnswerRecord, error)
}

const greeting = "Hi! Ask me anything about the earthquakes in the dataset."

type role int

const (
	roleAssistant role = iota
	roleUser
	roleError
)

// turn is one entry of the conversation. History lives only in the UI.
type turn struct {
	role    role
	text    string
	sources []rag.Evidence
}

type startedMsg struct {
	report *indexer.BuildReport
	err    error
}

type answerMsg struct {
	record *rag.AnswerRecord
	err    error
}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	ctx      context.Context
	port     Port
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []turn
	status   string
	ready    bool // window size known
	indexed  bool
	busy     bool
	err      error
}

// New creates a chat model. The index is built or loaded when the program starts.
func New(ctx context.Context, port Port) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What was the largest earthquake?"
	ti.Focus()
	ti.CharLimit = service.MaxQuestionLength

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		port:     port,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		history:  []turn{{role: roleAssistant, text: greeting}},
		status:   "Preparing the index...",
		busy:     true,
	}
}

// Err returns the startup error that ended the program, if any.
func (m Model) Err() error {
	return m.err
}

// Init starts the cursor blink, the spinner and the index build.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.start())
}

func (m Model) start() tea.Cmd {
	return func() tea.Msg {
		report, err := m.port.Start(m.ctx)
		return startedMsg{report: report, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		record, err := m.port.AnswerQuery(m.ctx, rag.AskRequest{Question: question})
		return answerMsg{record: record, err: err}
	}
}

// Update handles key, window and pipeline events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 + bh // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-historyBoxStyle.GetHorizontalFrameSize())
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-queryBoxStyle.GetHorizontalFrameSize()-len(m.input.Prompt))
		m.refresh()
		return m, nil

	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.indexed = true
		m.status = readyStatus(msg.report)
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.history = append(m.history, turn{role: roleError, text: friendlyError(msg.err)})
			m.status = "Ready."
		} else {
			m.history = append(m.history, turn{role: roleAssistant, text: msg.record.Answer, sources: msg.record.Evidence})
			m.status = fmt.Sprintf("Answered from %d source(s).", len(msg.record.Evidence))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			if m.busy {
				if !m.indexed {
					m.status = "Still preparing the index, one moment..."
				}
				return m, nil
			}
			m.input.Reset()
			m.history = append(m.history, turn{role: roleUser, text: q})
			m.busy = true
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the conversation, the input box and the status line.
func (m Model) View() string {
	if m.err != nil {
		// The caller reports the startup error once the program exits.
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Earthquake Q&A")
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	return header + "\n" + history + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(renderHistory(m.history, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderHistory(history []turn, width int) string {
	wrap := lipgloss.NewStyle().Width(max(20, width))
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		switch t.role {
		case roleUser:
			b.WriteString(wrap.Render(userStyle.Render("You: ") + t.text))
		case roleError:
			b.WriteString(wrap.Render(errorStyle.Render(t.text)))
		default:
			b.WriteString(wrap.Render(assistantStyle.Render("Assistant: ") + t.text))
			for _, s := range t.sources {
				line := fmt.Sprintf("[%d] %s  M%s  %s", s.CitationID, s.Source, quake.FormatNumber(s.Magnitude), s.Region)
				b.WriteString("\n" + wrap.Render(sourceStyle.Render(line)))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func readyStatus(report *indexer.BuildReport) string {
	if report == nil {
		return "Ready."
	}
	verb := "Built"
	if report.Loaded {
		verb = "Loaded"
	}
	return fmt.Sprintf("%s index with %d segments. Ready.", verb, report.Segments)
}

// friendlyError turns a per-query failure into an apologetic inline message.
func friendlyError(err error) string {
	var (
		validationErr *service.ValidationError
		timeoutErr    *llm.GenerationTimeoutError
		genErr        *llm.GenerationProviderError
		embedErr      *llm.EmbeddingProviderError
	)
	switch {
	case errors.Is(err, service.ErrNotReady):
		return "The index is not ready yet. Please try again in a moment."
	case errors.As(err, &validationErr):
		return "Sorry, I can't use that question: " + validationErr.Message + "."
	case errors.As(err, &timeoutErr):
		return "Sorry, the answer took too long to generate. Please try again."
	case errors.As(err, &embedErr), errors.As(err, &genErr):
		return "Sorry, the language model service is unavailable right now. Please try again later."
	default:
		return "Sorry, something went wrong: " + err.Error()
	}
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	spinnerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
