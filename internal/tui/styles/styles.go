// Package styles holds the shared lipgloss palette and text styles for
// the gauntlet dashboard. Colors are picked for dark terminals.
package styles

import "github.com/charmbracelet/lipgloss"

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	PrimaryColor   = lipgloss.Color("#38BDF8") // sky
	SecondaryColor = lipgloss.Color("#34D399") // emerald
	WarningColor   = lipgloss.Color("#FBBF24") // amber
	ErrorColor     = lipgloss.Color("#FB7185") // rose
	MutedColor     = lipgloss.Color("#94A3B8") // slate
	TextColor      = lipgloss.Color("#F8FAFC")
	BorderColor    = lipgloss.Color("#64748B")

	// Single-color styles used inline when composing views.
	Primary   = fg(PrimaryColor)
	Secondary = fg(SecondaryColor)
	Warning   = fg(WarningColor)
	Error     = fg(ErrorColor)
	Muted     = fg(MutedColor)
	Text      = fg(TextColor)

	// Stage and capability status colors. Idle is muted so active work
	// stands out in the board.
	StatusIdle      = MutedColor
	StatusRunning   = WarningColor
	StatusCompleted = SecondaryColor
	StatusFailed    = ErrorColor

	Header = fg(PrimaryColor).
		Bold(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(BorderColor).
		MarginBottom(1).
		PaddingBottom(1)

	Subtitle = fg(MutedColor).Italic(true)

	HelpBar = fg(MutedColor).MarginTop(1)
	HelpKey = fg(SecondaryColor).Bold(true)

	ErrorMsg   = fg(ErrorColor).Bold(true)
	SuccessMsg = fg(SecondaryColor).Bold(true)

	// Option rows in the config editor's select dropdown.
	DropdownItem         = fg(TextColor).Padding(0, 1)
	DropdownItemSelected = fg(TextColor).Background(PrimaryColor).Bold(true).Padding(0, 1)
)

var statusColors = map[string]lipgloss.Color{
	"idle":        StatusIdle,
	"pending":     StatusIdle,
	"running":     StatusRunning,
	"in_progress": StatusRunning,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
}

var statusIcons = map[string]string{
	"idle":      "○",
	"pending":   "○",
	"completed": "✓",
	"failed":    "✗",
}

// StatusColor maps a run or capability status string to its display color.
func StatusColor(status string) lipgloss.Color {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return MutedColor
}

// StatusIcon maps a run or capability status string to a one-rune marker.
// Anything unrecognized renders as the running dot.
func StatusIcon(status string) string {
	if icon, ok := statusIcons[status]; ok {
		return icon
	}
	return "●"
}
