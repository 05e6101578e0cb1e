package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailai/internal/keys"
	"github.com/nhle/mailai/internal/model"
	"github.com/nhle/mailai/internal/processor"
)

type fakeMonitor struct {
	reports []*model.CycleReport
}

func (f *fakeMonitor) Monitor(ctx context.Context, opts processor.Options) error {
	for _, r := range f.reports {
		opts.OnCycle(r)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeMonitor) Status() processor.Status {
	return processor.Status{State: processor.StateIdle}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	return next.(Model)
}

func TestCycleReportsAreLogged(t *testing.T) {
	m := sized(t, New(&fakeMonitor{}, processor.Options{}, keys.DefaultKeyMap()))

	report := &model.CycleReport{
		ID:         uuid.New(),
		FinishedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		Results: []model.ProcessingResult{
			{UID: 1, Subject: "AI: hello", Status: model.StatusDelivered, Provider: "ollama", Model: "llama3"},
		},
	}
	next, cmd := m.Update(CycleMsg{Report: report})
	m = next.(Model)

	require.NotNil(t, cmd)
	require.Equal(t, 1, m.cycles)
	require.Len(t, m.lines, 1)
	require.Contains(t, m.lines[0], "AI: hello")
	require.Contains(t, m.View(), "mailai monitor")
}

func TestAbortedCycleIsShown(t *testing.T) {
	m := sized(t, New(&fakeMonitor{}, processor.Options{}, keys.DefaultKeyMap()))

	next, _ := m.Update(CycleMsg{Report: &model.CycleReport{Err: errors.New("connection refused")}})
	m = next.(Model)

	require.Len(t, m.lines, 1)
	require.Contains(t, m.lines[0], "cycle aborted")
	require.Contains(t, m.statusText(), "failed")
}

func TestQuitCancelsMonitorAndWaitsForStop(t *testing.T) {
	fm := &fakeMonitor{reports: []*model.CycleReport{{ID: uuid.New()}}}
	m := sized(t, New(fm, processor.Options{}, keys.DefaultKeyMap()))

	stopCmd := m.start()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	require.True(t, m.stopping)
	require.Error(t, m.ctx.Err())

	msg := stopCmd()
	require.IsType(t, StoppedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)

	report := (<-m.reports)
	require.NotNil(t, report)
}

func TestLogIsBounded(t *testing.T) {
	m := New(&fakeMonitor{}, processor.Options{}, keys.DefaultKeyMap())
	for i := 0; i < maxLogLines+10; i++ {
		m.addReport(&model.CycleReport{})
	}
	require.Len(t, m.lines, maxLogLines)
}
