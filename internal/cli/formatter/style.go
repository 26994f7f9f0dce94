// Package formatter renders workspace data for the terminal.
package formatter

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleRed    = lipgloss.NewStyle().Foreground(ColorRed)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// SetPlain switches every style to unstyled output, for pipes and files.
func SetPlain(plain bool) {
	if !plain {
		return
	}
	plainStyle := lipgloss.NewStyle()
	StyleGreen = plainStyle
	StyleYellow = plainStyle
	StyleRed = plainStyle
	StyleDim = plainStyle
	StyleHeader = plainStyle
	StyleBold = plainStyle
}

// Header renders a section header with an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", lipgloss.Width(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// Dim renders text in the muted color.
func Dim(text string) string {
	return StyleDim.Render(text)
}

// Bold renders text in bold.
func Bold(text string) string {
	return StyleBold.Render(text)
}

// Truncate shortens s to max visible runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if max <= 1 || len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
