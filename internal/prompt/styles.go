package prompt

import "github.com/charmbracelet/lipgloss"

// Colors used by the prompt screens.
var (
	colorRed    = lipgloss.Color("#FF0000")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
	colorWhite  = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	gestureStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	holdStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	restStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	pausedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	recordingDotStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorRed)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	footerKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
