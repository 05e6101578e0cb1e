// Package ui holds the shared frame of the terminal views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailai/internal/theme"
)

// Layout manages the terminal view dimensions: a header line, the
// content area, and a status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight returns the height left for content between the header
// and the status bar. It never drops below one line.
func (l Layout) ContentHeight() int {
	return max(l.Height-2, 1)
}

// bar renders left and right aligned text on a full-width line.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	l1 := style.Render(left)
	r1 := ""
	if right != "" {
		r1 = style.Render(right)
	}

	gap := max(l.Width-lipgloss.Width(l1)-lipgloss.Width(r1), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, l1, filler, r1)
}

// RenderHeader renders the top bar with a title and a status on the right.
func (l Layout) RenderHeader(title, status string) string {
	return l.bar(theme.HeaderStyle, title, status)
}

// RenderStatusBar renders the bottom bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	return l.bar(theme.StatusBarStyle, hints, "")
}

// RenderWithFrame stacks header, content, and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
