package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by text mode rendering.
// The zero value renders everything unstyled, which keeps markdown and
// JSON output free of ANSI escape codes.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	// ID styles subject identifiers wherever they appear inline.
	ID lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusRunning lipgloss.Style
}

// NewStyles returns the style set. When colored is false every style is
// a passthrough.
func NewStyles(colored bool) *Styles {
	if !colored {
		return &Styles{}
	}
	return &Styles{
		Header1:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:          lipgloss.NewStyle().Bold(true),
		Muted:         lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:         lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		ID:            lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		StatusSuccess: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		StatusFailed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
}
