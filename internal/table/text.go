package table

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	textHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	textKeyStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	textDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	textActiveStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
)

// maxTextCell caps column width in terminal output.
const maxTextCell = 32

// RenderText lays out v for a terminal: a header with sort arrows, one line
// per record, then the summary and the pager.
func RenderText(v View) string {
	if v.Formats == nil {
		v.Formats = DefaultFormats()
	}

	headers := make([]string, len(v.Columns))
	widths := make([]int, len(v.Columns))
	for i, c := range v.Columns {
		headers[i] = c.Title
		if ind := v.SortIndicator(c.Key); ind != "" {
			headers[i] += " " + ind
		}
		widths[i] = lipgloss.Width(headers[i])
	}
	cells := make([][]string, len(v.Page.Records))
	for ri, r := range v.Page.Records {
		cells[ri] = make([]string, len(v.Columns))
		for i, c := range v.Columns {
			s := truncate(v.Formats.CellText(c, r), maxTextCell)
			cells[ri][i] = s
			widths[i] = max(widths[i], lipgloss.Width(s))
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(textHeaderStyle.Width(widths[i] + 2).Render(h))
	}
	b.WriteByte('\n')

	if len(cells) == 0 {
		b.WriteString(textDimStyle.Render(v.EmptyMessage))
		b.WriteByte('\n')
	}
	for _, row := range cells {
		for i, s := range row {
			style := lipgloss.NewStyle()
			if v.Columns[i].Key == v.KeyField {
				style = textKeyStyle
			}
			b.WriteString(style.Width(widths[i] + 2).Render(s))
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(textDimStyle.Render(v.Summary()))
	if len(v.Pager) > 0 {
		b.WriteString("  ")
		for _, item := range v.Pager {
			switch {
			case item.Active:
				b.WriteString(textActiveStyle.Render(" " + item.Label + " "))
			case item.Disabled:
				b.WriteString(textDimStyle.Render(" " + item.Label + " "))
			default:
				b.WriteString(" " + item.Label + " ")
			}
		}
	}
	b.WriteByte('\n')
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
