// Package chat is an interactive terminal panel that sends questions
// through the provider registry, the same path email requests take.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailai/internal/keys"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/theme"
	"github.com/nhle/mailai/internal/ui"
)

// Answerer is the registry's query operation.
type Answerer interface {
	Query(ctx context.Context, prompt, provider, model string) (model.Answer, error)
}

// AnswerMsg carries the outcome of one question.
type AnswerMsg struct {
	Answer model.Answer
	Err    error
}

// displayMessage represents a message rendered in the conversation viewport.
type displayMessage struct {
	Role    string
	Content string
	Footer  string
}

// Model is the chat panel.
type Model struct {
	answerer Answerer
	provider string
	model    string
	timeout  time.Duration

	layout   ui.Layout
	input    textarea.Model
	viewport viewport.Model
	help     help.Model
	keys     *keys.KeyMap
	messages []displayMessage
	waiting  bool
}

// New creates a chat panel. provider and modelName may be empty.
func New(answerer Answerer, provider, modelName string, timeout time.Duration, k *keys.KeyMap) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.CharLimit = 4000
	ta.Focus()

	return Model{
		answerer: answerer,
		provider: provider,
		model:    modelName,
		timeout:  timeout,
		layout:   ui.NewLayout(80, 24),
		input:    ta,
		viewport: viewport.New(80, 16),
		help:     help.New(),
		keys:     k,
	}
}

// Init returns the initial command for the chat panel.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages for the chat panel.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case AnswerMsg:
		m.waiting = false
		if msg.Err != nil {
			m.messages = append(m.messages, displayMessage{Role: "Error", Content: msg.Err.Error()})
		} else {
			m.messages = append(m.messages, displayMessage{
				Role:    msg.Answer.Label,
				Content: msg.Answer.Text,
				Footer:  fmt.Sprintf("%s · %s", msg.Answer.Provider, msg.Answer.Model),
			})
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKeyMsg processes keyboard input.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC, key.Matches(msg, m.keys.Back):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		if m.waiting {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.messages = append(m.messages, displayMessage{Role: "You", Content: text})
		m.waiting = true
		m.refreshViewport()
		return m, m.ask(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask returns a command that queries the registry in the background.
func (m Model) ask(text string) tea.Cmd {
	answerer, provider, modelName, timeout := m.answerer, m.provider, m.model, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := answerer.Query(ctx, text, provider, modelName)
		return AnswerMsg{Answer: answer, Err: err}
	}
}

func (m *Model) setSize(width, height int) {
	m.layout = ui.NewLayout(width, height)
	m.help.Width = width
	m.input.SetWidth(width - 2)
	m.viewport.Width = width
	m.viewport.Height = max(m.layout.ContentHeight()-m.input.Height()-1, 3)
	m.refreshViewport()
}

// refreshViewport re-renders the conversation content and scrolls to bottom.
func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

// renderConversation builds the conversation display string.
func (m Model) renderConversation() string {
	if len(m.messages) == 0 {
		return theme.HelpStyle.Render("Questions go through the same providers and fallback order as email requests.")
	}

	roleStyle := lipgloss.NewStyle().Bold(true)
	userStyle := roleStyle.Foreground(theme.ColorBlue)
	assistantStyle := roleStyle.Foreground(theme.ColorGreen)
	errorStyle := roleStyle.Foreground(theme.ColorRed)

	var sections []string
	for _, msg := range m.messages {
		var label string
		switch msg.Role {
		case "You":
			label = userStyle.Render("You:")
		case "Error":
			label = errorStyle.Render("Error:")
		default:
			label = assistantStyle.Render(msg.Role + ":")
		}
		sections = append(sections, label, msg.Content)
		if msg.Footer != "" {
			sections = append(sections, theme.HelpStyle.Render(msg.Footer))
		}
		sections = append(sections, "")
	}

	if m.waiting {
		sections = append(sections, theme.HelpStyle.Render("waiting for an answer..."))
	}
	return strings.Join(sections, "\n")
}

// View renders the chat panel.
func (m Model) View() string {
	target := "fallback order"
	if m.provider != "" {
		target = m.provider
	}
	header := m.layout.RenderHeader("mailai chat", target)
	content := lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), m.input.View())
	return m.layout.RenderWithFrame(header, content, m.layout.RenderStatusBar(m.help.View(chatHelp{m.keys})))
}

// chatHelp limits the hints to the keys the chat panel uses.
type chatHelp struct{ k *keys.KeyMap }

func (h chatHelp) ShortHelp() []key.Binding  { return []key.Binding{h.k.Send, h.k.Back} }
func (h chatHelp) FullHelp() [][]key.Binding { return [][]key.Binding{h.ShortHelp()} }

// Run opens the chat panel and blocks until the user leaves.
func Run(answerer Answerer, provider, modelName string, timeout time.Duration) error {
	_, err := tea.NewProgram(
		New(answerer, provider, modelName, timeout, keys.DefaultKeyMap()),
		tea.WithAltScreen(),
	).Run()
	return err
}
