package cli

import (
	"io"

	"kaggleharvest/internal/core/report"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderSummary prints the counters and any failed items as tables
func renderSummary(w io.Writer, runID string, rep *report.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("%s run %s", rep.Stage, runID)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, r := range rep.Rows() {
		t.AppendRow(table.Row{r.Name, r.Value})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	rep.Count(func(r *report.Report) {
		if len(r.Failures) == 0 {
			return
		}
		ft := table.NewWriter()
		ft.SetOutputMirror(w)
		ft.SetTitle("left for the next run")
		ft.AppendHeader(table.Row{"ID", "Error"})
		for _, f := range r.Failures {
			ft.AppendRow(table.Row{f.ID, f.Error})
		}
		ft.SetStyle(table.StyleRounded)
		ft.Render()
	})
}
