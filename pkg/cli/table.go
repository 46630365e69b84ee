package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for command output.
type Theme struct {
	Primary lipgloss.Color // headers and labels
	Dim     lipgloss.Color // secondary text
}

// DefaultTheme is the default green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00d7af"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Note   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Cell:   lipgloss.NewStyle(),
		Note:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Table renders a header row and data rows as left-aligned columns with
// a two-space gutter. Column widths follow the widest cell; rows shorter
// than the header render empty trailing cells, and extra cells in a row
// are ignored.
func Table(s Styles, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	last := len(headers) - 1
	for i, h := range headers {
		if i > 0 {
			b.WriteString("  ")
		}
		if i < last {
			h = pad(h, widths[i])
		}
		b.WriteString(s.Header.Render(h))
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i := range headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			if i > 0 {
				b.WriteString("  ")
			}
			if i < last {
				cell = pad(cell, widths[i])
			}
			b.WriteString(s.Cell.Render(cell))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// pad right-pads text to width display cells.
func pad(text string, width int) string {
	gap := width - lipgloss.Width(text)
	if gap <= 0 {
		return text
	}
	return text + strings.Repeat(" ", gap)
}
