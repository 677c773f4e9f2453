package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders a table in the current mode. Text mode draws box
// characters, markdown mode emits a pipe table.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	headerRow := make(table.Row, 0, len(header))
	for _, h := range header {
		headerRow = append(headerRow, h)
	}
	t.AppendHeader(headerRow)

	for _, row := range rows {
		tr := make(table.Row, 0, len(row))
		for _, cell := range row {
			tr = append(tr, cell)
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
