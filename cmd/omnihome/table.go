package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	sepStyle    = lipgloss.NewStyle().Faint(true)
)

// table renders aligned rows for terminal output.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) addRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	// Width includes the padding.
	total := len(widths) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	var sb strings.Builder
	t.writeRow(&sb, headerStyle, widths, t.headers)
	sb.WriteString(sepStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range t.rows {
		t.writeRow(&sb, cellStyle, widths, row)
	}
	return sb.String()
}

func (t *table) writeRow(sb *strings.Builder, style lipgloss.Style, widths []int, cells []string) {
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		sb.WriteString(style.Width(widths[i]).Render(cell))
		if i < len(widths)-1 {
			sb.WriteString(sepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")
}

func (t *table) write(w io.Writer) error {
	_, err := io.WriteString(w, t.render())
	return err
}
