package ui

import "github.com/charmbracelet/lipgloss"

// Color palette shared by the watch dashboard.
var (
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Success / price up
	Red     = lipgloss.Color("#FF5555") // Errors / price down
	Blue    = lipgloss.Color("#3B82F6") // Info

	Base02 = lipgloss.Color("#262831") // Darker background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
)

// Palette provides centralized color management.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color

	Up   lipgloss.Color
	Down lipgloss.Color
}

// DefaultPalette returns the default color palette.
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Background: Base02,
		Text:       Base2,
		TextMuted:  Base01,

		Up:   Green,
		Down: Red,
	}
}
