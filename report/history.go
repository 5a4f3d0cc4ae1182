package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"factorlab/db"
)

// WriteHistory prints the run log, newest first.
func WriteHistory(w io.Writer, runs []db.RunSummary) error {
	t := newTable("Recent runs")
	t.AppendHeader(table.Row{"ID", "Started", "Tickers", "Obs", "Kaiser", "Cum.", "Cfg", "KMO", "Bartlett p", "Gate", "R²"})
	for _, r := range runs {
		gate := passFail(r.Passed)
		rsq := "-"
		if !math.IsNaN(r.RSquared) {
			rsq = f3(r.RSquared)
		}
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04"),
			strings.Join(r.Tickers, ","),
			r.Observations,
			r.Kaiser,
			r.Cumulative,
			r.Configured,
			f3(r.KMO),
			pvalue(r.PValue),
			gate,
			rsq,
		})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
