package viewtui

import "github.com/charmbracelet/lipgloss"

// Catppuccin-ish palette, close to the web viewer's.
var (
	colorBlue    = lipgloss.Color("#89b4fa")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorYellow  = lipgloss.Color("#f9e2af")
	colorRed     = lipgloss.Color("#f38ba8")
	colorText    = lipgloss.Color("#cdd6f4")
	colorOverlay = lipgloss.Color("#6c7086")
	colorSurface = lipgloss.Color("#313244")
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorText).
			Background(colorSurface).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorOverlay).
			Background(colorSurface).
			Padding(0, 1)

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	agentLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	toolLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(colorOverlay).
			Italic(true)

	textStyle = lipgloss.NewStyle().
			Foreground(colorText)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorOverlay)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	pendingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	queuedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
