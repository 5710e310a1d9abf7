package commands

import (
	"os"
	"transitperf/internal/performance"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func renderRows(rows []performance.PerformanceRow) {
	t := newTable()
	t.AppendHeader(table.Row{"Metric date", "Route", "Target", "Past day", "Past 7", "Past 30", "Updated"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.MetricDate.String(),
			r.RouteLabel,
			performance.FormatPercent(r.Target),
			performance.FormatPercent(r.PastDay),
			performance.FormatPercent(r.Past7),
			performance.FormatPercent(r.Past30),
			r.DateUpdated.String(),
		})
	}
	t.Render()
}
