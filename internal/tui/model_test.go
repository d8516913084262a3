package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
)

type fakeChat struct {
	answer domain.Answer
	err    error
	calls  []string
	ids    []string
}

func (f *fakeChat) Query(_ context.Context, q, id string) (domain.Answer, error) {
	f.calls = append(f.calls, q)
	f.ids = append(f.ids, id)
	return f.answer, f.err
}

func sized(t *testing.T, svc ChatPort) Model {
	t.Helper()
	m := New(context.Background(), svc, "sess-1", "1 course loaded")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	next, cmd := next.(Model).Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runAnswer executes the batched command and feeds the answer back.
func runAnswer(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if c == nil {
			continue
		}
		if msg, ok := c().(answerMsg); ok {
			next, _ := m.Update(msg)
			return next.(Model)
		}
	}
	t.Fatal("no answer message in batch")
	return m
}

func TestChat_AnswerWithSources(t *testing.T) {
	svc := &fakeChat{answer: domain.Answer{
		Text:    "ML learns from data.",
		Sources: []domain.Source{{Text: "Test Course on AI - Lesson 1", Link: "https://example.com/lesson1"}, {Text: "Test Course on AI - Lesson 2"}},
	}}
	m := sized(t, svc)

	m, cmd := typeAndSubmit(t, m, "What is ML?")
	assert.True(t, m.busy)
	assert.Equal(t, "", m.input.Value())

	m = runAnswer(t, m, cmd)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"What is ML?"}, svc.calls)
	assert.Equal(t, []string{"sess-1"}, svc.ids)

	view := m.View()
	assert.Contains(t, view, "What is ML?")
	assert.Contains(t, view, "ML learns from data.")
	assert.Contains(t, view, "1. Test Course on AI - Lesson 1 (https://example.com/lesson1)")
	assert.Contains(t, m.status, "2 source(s)")
}

func TestChat_Error(t *testing.T) {
	m := sized(t, &fakeChat{err: errors.New("engine down")})
	m, cmd := typeAndSubmit(t, m, "hello")
	m = runAnswer(t, m, cmd)
	assert.Contains(t, m.status, "engine down")
	assert.Contains(t, m.renderTranscript(), "Error: engine down")
}

func TestChat_IgnoresBlankAndBusyInput(t *testing.T) {
	svc := &fakeChat{}
	m := sized(t, svc)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	m = next.(Model)

	m, cmd = typeAndSubmit(t, m, "first")
	require.NotNil(t, cmd)
	_, second := typeAndSubmit(t, m, "second")
	assert.Nil(t, second)
	assert.Len(t, m.turns, 1)
}

func TestChat_Quit(t *testing.T) {
	m := sized(t, &fakeChat{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRenderSources(t *testing.T) {
	assert.Equal(t, "", RenderSources(nil))
	assert.Equal(t, "Sources:\n  1. A (http://a)\n  2. B", RenderSources([]domain.Source{{Text: "A", Link: "http://a"}, {Text: "B"}}))
}

func TestView_BeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeChat{}, "s", "")
	assert.Equal(t, "Loading...", m.View())
}
