// Package dashboard is the live terminal view of the monitor loop.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailai/internal/keys"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/processor"
	"github.com/nhle/mailai/internal/theme"
	"github.com/nhle/mailai/internal/ui"
)

// maxLogLines bounds the result log kept in memory.
const maxLogLines = 500

// Monitor is the part of processor.Loop the dashboard drives.
type Monitor interface {
	Monitor(ctx context.Context, opts processor.Options) error
	Status() processor.Status
}

// CycleMsg is a tea.Msg carrying a finished cycle report.
type CycleMsg struct {
	Report *model.CycleReport
}

// StoppedMsg is a tea.Msg sent when the monitor loop has returned.
type StoppedMsg struct {
	Err error
}

// Model is the root Bubble Tea model of the dashboard.
type Model struct {
	monitor Monitor
	opts    processor.Options

	ctx     context.Context
	cancel  context.CancelFunc
	reports chan *model.CycleReport
	done    chan error

	layout   ui.Layout
	keys     *keys.KeyMap
	help     help.Model
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	lines    []string
	cycles   int
	last     model.CycleCounts
	lastErr  error
	stopping bool
	Err      error
}

// New creates a dashboard that runs monitor with opts once started.
func New(monitor Monitor, opts processor.Options, k *keys.KeyMap) Model {
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		monitor: monitor,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		reports: make(chan *model.CycleReport, 16),
		done:    make(chan error, 1),
		keys:    k,
		help:    help.New(),
		spinner: sp,
	}
}

// Init starts the monitor loop and subscribes to its reports.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.waitForReport())
}

// start runs the monitor in the background. Reports are forwarded on
// the reports channel; the loop's return value on done.
func (m Model) start() tea.Cmd {
	opts := m.opts
	reports := m.reports
	opts.OnCycle = func(r *model.CycleReport) {
		select {
		case reports <- r:
		default:
			// Drop if the view is not keeping up.
		}
	}

	monitor, ctx, done := m.monitor, m.ctx, m.done
	go func() {
		done <- monitor.Monitor(ctx, opts)
	}()

	return m.waitForStop()
}

func (m Model) waitForReport() tea.Cmd {
	reports := m.reports
	return func() tea.Msg {
		return CycleMsg{Report: <-reports}
	}
}

func (m Model) waitForStop() tea.Cmd {
	done := m.done
	return func() tea.Msg {
		return StoppedMsg{Err: <-done}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.help.Width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.layout.ContentHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.layout.ContentHeight()
		}
		m.refresh()
		return m, nil

	case CycleMsg:
		m.addReport(msg.Report)
		m.refresh()
		return m, m.waitForReport()

	case StoppedMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			m.lines = m.lines[:0]
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) addReport(r *model.CycleReport) {
	if r == nil {
		return
	}
	m.cycles++
	m.last = r.Counts()
	m.lastErr = r.Err

	stamp := r.FinishedAt.Format(time.TimeOnly)
	if len(r.Results) == 0 && r.Err == nil {
		m.lines = append(m.lines, theme.HelpStyle.Render(stamp+"  no new requests"))
	}
	for _, res := range r.Results {
		m.lines = append(m.lines, stamp+"  "+theme.Result(res))
	}
	if r.Err != nil {
		m.lines = append(m.lines, stamp+"  "+theme.StatusStyle(model.StatusFailed).Render("cycle aborted: "+r.Err.Error()))
	}
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) statusText() string {
	switch {
	case m.stopping:
		return m.spinner.View() + " finishing current message"
	case m.lastErr != nil:
		return fmt.Sprintf("cycle %d failed", m.cycles)
	default:
		s := m.monitor.Status()
		return fmt.Sprintf("%s %s | cycles %d | %d delivered %d skipped %d failed",
			m.spinner.View(), s.State, m.cycles, m.last.Delivered, m.last.Skipped, m.last.Failed)
	}
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "starting monitor..."
	}
	header := m.layout.RenderHeader("mailai monitor", m.statusText())
	status := m.layout.RenderStatusBar(m.help.View(m.keys))
	return m.layout.RenderWithFrame(header, m.viewport.View(), status)
}

// Run starts the dashboard and blocks until the monitor has stopped.
func Run(monitor Monitor, opts processor.Options) error {
	m := New(monitor, opts, keys.DefaultKeyMap())
	defer m.cancel()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if dm, ok := final.(Model); ok {
		return dm.Err
	}
	return nil
}
