package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/conesim/internal/poles"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 2)

	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	activeParamStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	graphStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).MarginTop(1)

	statusRunning = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff88"))
	statusPaused  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffaa00"))
	statusFailed  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))

	// Pole colours follow the pole-map convention: red unstable, orange
	// marginal.
	poleStable   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	poleMarginal = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff8c00"))
	poleUnstable = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff4444"))
)

func poleStyle(s poles.Stability) lipgloss.Style {
	switch s {
	case poles.Unstable:
		return poleUnstable
	case poles.Marginal:
		return poleMarginal
	default:
		return poleStable
	}
}

// ProgressBar renders the share of the step budget already spent.
func ProgressBar(percent float64, width int) string {
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
