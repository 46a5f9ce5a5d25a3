package output

import "github.com/charmbracelet/lipgloss"

// Color palette: a single lime accent with grays.
const (
	ColorLime     = "154" // Primary accent
	ColorLimeDim  = "106" // Categories and borders
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings
	ColorBlue     = "75"  // URLs
)

// Styles holds the lipgloss styles used by the Writer.
type Styles struct {
	Header   lipgloss.Style
	Category lipgloss.Style
	Title    lipgloss.Style
	URL      lipgloss.Style
	Engine   lipgloss.Style
	Label    lipgloss.Style
	Dim      lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Panel    lipgloss.Style
}

// DefaultStyles returns the colored styles for terminals.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLime)),
		Category: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorLimeDim)),
		Title:    lipgloss.NewStyle().Bold(true),
		URL:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue)),
		Engine:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Label:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime)),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
	}
}

// NoColorStyles returns unstyled components for plain output.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:   plain,
		Category: plain,
		Title:    plain,
		URL:      plain,
		Engine:   plain,
		Label:    plain,
		Dim:      plain,
		Success:  plain,
		Warning:  plain,
		Error:    plain,
		Panel:    plain,
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
