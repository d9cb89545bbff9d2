package nn

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// Summary renders a table with one row per layer and its parameter count,
// followed by the model total.
func (m *Model) Summary() string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "Layer", "Parameters")

	for i, layer := range m.layers {
		count := 0
		for _, p := range layer.Parameters() {
			count += p.Shape.NumElements()
		}
		table.Row(strconv.Itoa(i), layer.String(), humanize.Comma(int64(count)))
	}
	table.Row("", "Total", humanize.Comma(int64(m.NumParameters())))
	return table.String()
}
