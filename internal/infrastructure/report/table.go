package report

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// grid wraps a go-pretty table writer with the light box style.
type grid struct {
	w table.Writer
}

func newGrid(header ...any) *grid {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row(header))
	return &grid{w: w}
}

func (g *grid) row(vals ...any) {
	g.w.AppendRow(table.Row(vals))
}

func (g *grid) footer(vals ...any) {
	g.w.AppendFooter(table.Row(vals))
}

// alignRight right-aligns the given 1-based columns.
func (g *grid) alignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight, AlignFooter: text.AlignRight}
	}
	g.w.SetColumnConfigs(cfgs)
}

func (g *grid) String() string {
	return g.w.Render()
}
