// Package theme holds the terminal styles used by the command line.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/bcfeed/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// UploaderStyle renders artist and label names.
var UploaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue)

// ReleaseStyle renders release names.
var ReleaseStyle = lipgloss.NewStyle().
	Foreground(ColorWhite)

// MutedStyle is used for dates, links and hints.
var MutedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// SuccessStyle marks completed operations.
var SuccessStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// ErrorStyle marks failures.
var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// BorderStyle provides a standard rounded border for panels.
var BorderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder).
	Padding(0, 1)

// ReleaseTypeStyle returns a color-coded style for a release type label.
func ReleaseTypeStyle(t model.ReleaseType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch t {
	case model.ReleaseTypeTrack:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGreen)
	}
}

// PhaseStyle returns a color-coded style for a sync phase.
func PhaseStyle(p model.Phase) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch p {
	case model.PhaseRecent:
		return base.Foreground(ColorYellow)
	case model.PhaseBacklog:
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}
