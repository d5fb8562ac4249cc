// Package util provides small string helpers shared by the CLI and TUI
// output paths.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// ellipsis is appended wherever a string had to be cut.
const ellipsis = "..."

// TruncateString truncates a string to maxLen runes, adding "..." when
// it was cut. It counts runes, not columns, and knows nothing about
// ANSI escape codes; use it for plain output such as status rows and
// failure reasons. For styled terminal output use TruncateANSI.
func TruncateString(s string, maxLen int) string {
	if maxLen <= len(ellipsis) {
		return ellipsis
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-len(ellipsis)]) + ellipsis
}

// TruncateANSI truncates a string to maxWidth visual columns, adding
// "..." when it was cut. It preserves ANSI escape sequences and handles
// wide characters, so lipgloss-styled lines survive truncation intact.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate counts the tail against the final width.
	return ansi.Truncate(s, maxWidth, ellipsis)
}
