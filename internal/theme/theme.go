// Package theme holds the terminal styles used by the CLI output.
package theme

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailai/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar of the terminal views.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps summary blocks.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// LabelStyle is used for the left column of key/value listings.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(18)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// StatusStyle returns a color-coded style for a message status.
func StatusStyle(status model.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case model.StatusDelivered:
		return base.Foreground(ColorGreen)
	case model.StatusSkipped:
		return base.Foreground(ColorYellow)
	case model.StatusFailed:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// OutcomeStyle returns a color-coded style for an attachment outcome.
func OutcomeStyle(outcome model.AttachmentOutcome) lipgloss.Style {
	base := lipgloss.NewStyle()

	switch outcome {
	case model.OutcomeTextUsed:
		return base.Foreground(ColorGreen)
	case model.OutcomeTooLarge:
		return base.Foreground(ColorOrange)
	case model.OutcomeParseFailed:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// Availability renders a provider's readiness marker.
func Availability(ok bool) string {
	if ok {
		return lipgloss.NewStyle().Foreground(ColorGreen).Render("available")
	}
	return lipgloss.NewStyle().Foreground(ColorRed).Render("unavailable")
}

// KeyValue renders aligned "label value" lines.
func KeyValue(pairs ...[2]string) string {
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, LabelStyle.Render(p[0])+p[1])
	}
	return strings.Join(lines, "\n")
}

// Counts renders a cycle tally.
func Counts(c model.CycleCounts) string {
	return fmt.Sprintf("%s  %s  %s",
		StatusStyle(model.StatusDelivered).Render(fmt.Sprintf("%d delivered", c.Delivered)),
		StatusStyle(model.StatusSkipped).Render(fmt.Sprintf("%d skipped", c.Skipped)),
		StatusStyle(model.StatusFailed).Render(fmt.Sprintf("%d failed", c.Failed)),
	)
}

// Result renders one processing result as a single line.
func Result(r model.ProcessingResult) string {
	line := fmt.Sprintf("%s  #%d %q", StatusStyle(r.Status).Render(fmt.Sprintf("%-9s", r.Status)), r.UID, r.Subject)
	switch {
	case r.Status == model.StatusDelivered && r.Provider != "":
		line += HelpStyle.Render(fmt.Sprintf("  via %s (%s)", r.Provider, r.Model))
	case r.Reason != "":
		detail := r.Reason
		if r.Stage != "" {
			detail = string(r.Stage) + ": " + detail
		}
		line += HelpStyle.Render("  " + detail)
	}
	return line
}
