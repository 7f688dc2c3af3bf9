package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	darkBg      = lipgloss.Color("#0A0E27")
	dimWhite    = lipgloss.Color("#B0B0B0")

	logoStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(neonMagenta).
			Padding(0, 2)

	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	insertedStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	updatedStyle = lipgloss.NewStyle().
			Foreground(neonOrange)

	unchangedStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingLeft(2)
)

// outcomeStyle colors a feed line by what reconciliation did
func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "inserted":
		return insertedStyle
	case "updated":
		return updatedStyle
	default:
		return unchangedStyle
	}
}
