package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courserag/internal/domain"
)

// ChatPort is the TUI-facing subset of the query service.
type ChatPort interface {
	Query(ctx context.Context, query, sessionID string) (domain.Answer, error)
}

type turn struct {
	query   string
	answer  domain.Answer
	err     error
	pending bool
}

// answerMsg carries the result of an asynchronous query.
type answerMsg struct {
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea chat client. All queries share one session.
type Model struct {
	ctx       context.Context
	service   ChatPort
	sessionID string
	banner    string
	input     textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	turns     []turn
	status    string
	ready     bool
	busy      bool
}

func New(ctx context.Context, service ChatPort, sessionID, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the courses and press Enter"
	ti.Focus()
	ti.CharLimit = 1000
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:       ctx,
		service:   service,
		sessionID: sessionID,
		banner:    banner,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "Ready. Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, banner, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		last := &m.turns[len(m.turns)-1]
		last.pending = false
		last.answer, last.err = msg.answer, msg.err
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered with %d source(s).", len(msg.answer.Sources))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Thinking..."
			m.turns = append(m.turns, turn{query: q, pending: true})
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	ctx, svc, id := m.ctx, m.service, m.sessionID
	return func() tea.Msg {
		ans, err := svc.Query(ctx, q, id)
		return answerMsg{answer: ans, err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Course Materials Assistant")
	banner := dimStyle.Render(m.banner)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + banner + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	width := max(20, m.viewport.Width-4)
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: "))
		b.WriteString(t.query)
		b.WriteString("\n")
		switch {
		case t.pending:
			b.WriteString(m.spinner.View() + " thinking")
		case t.err != nil:
			b.WriteString(errorStyle.Render("Error: " + t.err.Error()))
		default:
			b.WriteString(assistantStyle.Render("Assistant: "))
			b.WriteString(lipgloss.NewStyle().Width(width).Render(t.answer.Text))
			if src := RenderSources(t.answer.Sources); src != "" {
				b.WriteString("\n")
				b.WriteString(dimStyle.Render(src))
			}
		}
	}
	return b.String()
}

// RenderSources numbers sources one per line, with the link when known.
func RenderSources(sources []domain.Source) string {
	if len(sources) == 0 {
		return ""
	}
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for i, s := range sources {
		line := fmt.Sprintf("  %d. %s", i+1, s.Text)
		if s.Link != "" {
			line += " (" + s.Link + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
