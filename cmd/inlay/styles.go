package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorPosition = lipgloss.Color("#3b82f6") // blue-500
	colorBefore   = lipgloss.Color("#d946ef") // fuchsia-500
	colorAfter    = lipgloss.Color("#06b6d4") // cyan-500
	colorLabel    = lipgloss.Color("#10b981") // green-500
	colorDim      = lipgloss.Color("#6b7280") // gray-500
	colorMuted    = lipgloss.Color("#9ca3af") // gray-400
)

// Styles holds the lipgloss styles for hint rows.
type Styles struct {
	Position lipgloss.Style
	Before   lipgloss.Style
	After    lipgloss.Style
	Anchor   lipgloss.Style
	Label    lipgloss.Style
	Tooltip  lipgloss.Style
	Count    lipgloss.Style

	TooltipIndent string
}

// DefaultStyles returns colored styles.
func DefaultStyles() *Styles {
	return &Styles{
		Position: lipgloss.NewStyle().Foreground(colorPosition).Bold(true),
		Before:   lipgloss.NewStyle().Foreground(colorBefore),
		After:    lipgloss.NewStyle().Foreground(colorAfter),
		Anchor:   lipgloss.NewStyle().Foreground(colorDim),
		Label:    lipgloss.NewStyle().Foreground(colorLabel).Italic(true),
		Tooltip:  lipgloss.NewStyle().Foreground(colorMuted),
		Count:    lipgloss.NewStyle().Foreground(colorDim),

		TooltipIndent: "    ",
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() *Styles {
	plain := lipgloss.NewStyle()

	return &Styles{
		Position: plain,
		Before:   plain,
		After:    plain,
		Anchor:   plain,
		Label:    plain,
		Tooltip:  plain,
		Count:    plain,

		TooltipIndent: "    ",
	}
}

// stylesFor picks colored styles for terminals and plain ones otherwise.
func stylesFor(w io.Writer, noColor bool) *Styles {
	if f, ok := w.(*os.File); ok && !noColor && isatty.IsTerminal(f.Fd()) {
		return DefaultStyles()
	}

	return PlainStyles()
}
