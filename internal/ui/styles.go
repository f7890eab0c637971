package ui

import "github.com/charmbracelet/lipgloss"

// Base text styles
var (
	StyleBold = lipgloss.NewStyle().Bold(true)
	StyleDim  = lipgloss.NewStyle().Foreground(ColorDim)
)

// Colored text styles
var (
	StyleCyan  = lipgloss.NewStyle().Foreground(ColorCyan)
	StyleGreen = lipgloss.NewStyle().Foreground(ColorGreen)
)

// Semantic styles
var (
	StyleHeader  = StyleBold.Copy().Foreground(ColorYellow)
	StyleSuccess = StyleBold.Copy().Foreground(ColorGreen)
	StyleWarning = StyleBold.Copy().Foreground(ColorYellow)
	StyleError   = StyleBold.Copy().Foreground(ColorOrange)
)

// InfoBoxStyle frames the incoming-request panel.
var InfoBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorCyan).
	Padding(0, 1).
	MaxWidth(80)

// TableHeaderStyle renders table column headers.
var TableHeaderStyle = StyleBold.Copy().
	Foreground(ColorCyan).
	PaddingRight(2)
