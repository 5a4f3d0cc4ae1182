// Package report renders analysis results for people: console tables and an
// Excel workbook with the loadings chart.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"factorlab/factor"
	"factorlab/pipeline"
)

var printer = message.NewPrinter(language.English)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func f3(v float64) string { return printer.Sprintf("%.3f", v) }
func f4(v float64) string { return printer.Sprintf("%.4f", v) }

// pvalue prints very small p-values in scientific notation like statsmodels.
func pvalue(p float64) string {
	if p < 1e-4 {
		return fmt.Sprintf("%.2e", p)
	}
	return f4(p)
}

// Write prints the full console report of res.
func Write(w io.Writer, res *pipeline.Result) error {
	sections := []func(io.Writer, *pipeline.Result) error{
		writeDiagnostics,
		writeFactorability,
		writeOutcome,
	}
	for _, section := range sections {
		if err := section(w, res); err != nil {
			return err
		}
	}
	return nil
}

func writeDiagnostics(w io.Writer, res *pipeline.Result) error {
	d := res.Diagnostics
	t := newTable(fmt.Sprintf("Eigenvalues (%d observations)", res.Standardized.Rows()))
	t.AppendHeader(table.Row{"Factor", "Eigenvalue", "Cumulative Variance"})
	for i, v := range d.Eigenvalues {
		t.AppendRow(table.Row{i + 1, f4(v), f4(d.CumulativeVariance[i])})
	}
	t.AppendFooter(table.Row{"", "Kaiser (λ > 1)", d.Kaiser})
	t.AppendFooter(table.Row{"", printer.Sprintf("Cumulative ≥ %.2f", d.Threshold), d.Cumulative})
	t.AppendFooter(table.Row{"", "Configured", res.Configured})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeFactorability(w io.Writer, res *pipeline.Result) error {
	f := res.Factorability
	t := newTable("Factorability")
	t.AppendHeader(table.Row{"Test", "Statistic", "Threshold", "Result"})
	t.AppendRow(table.Row{
		printer.Sprintf("Bartlett χ² (dof %.0f)", f.DegreesOfFreedom),
		f3(f.ChiSquare),
		printer.Sprintf("p < %.2f", f.BartlettAlpha),
		"p = " + pvalue(f.PValue),
	})
	t.AppendRow(table.Row{"KMO", f3(f.KMO), printer.Sprintf("≥ %.2f", f.KMOMin), passFail(f.KMO >= f.KMOMin)})
	t.AppendFooter(table.Row{"", "", "Gate", passFail(f.Passed)})
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	items := newTable("KMO per ticker")
	items.AppendHeader(table.Row{"Ticker", "MSA"})
	for i, v := range f.KMOPerItem {
		items.AppendRow(table.Row{res.Standardized.Columns[i], f3(v)})
	}
	_, err := fmt.Fprintln(w, items.Render())
	return err
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

func writeOutcome(w io.Writer, res *pipeline.Result) error {
	switch o := res.Outcome.(type) {
	case nil:
		return nil
	case *factor.NotFactorable:
		_, err := fmt.Fprintf(w, "Data is not suitable for factor analysis: %s\n", o.Reason)
		return err
	case *factor.Extracted:
		if err := writeLoadings(w, o.Loadings); err != nil {
			return err
		}
		if res.Regression != nil {
			return writeRegression(w, res.Regression)
		}
	}
	return nil
}

func writeLoadings(w io.Writer, l *factor.Loadings) error {
	t := newTable(fmt.Sprintf("Factor loadings (%s, %s)", l.Method, l.Rotation))
	header := table.Row{"Ticker"}
	for _, name := range l.Factors {
		header = append(header, name)
	}
	header = append(header, "Communality", "Uniqueness")
	t.AppendHeader(header)
	for i, ticker := range l.Variables {
		row := table.Row{ticker}
		for _, v := range l.Matrix[i] {
			row = append(row, f3(v))
		}
		row = append(row, f3(l.Communalities[i]), f3(l.Uniquenesses[i]))
		t.AppendRow(row)
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}

	v := newTable("Factor variance")
	v.AppendHeader(table.Row{"Factor", "SS Loadings", "Proportion Var", "Cumulative Var"})
	for _, fv := range l.Variance {
		v.AppendRow(table.Row{fv.Factor, f3(fv.SSLoadings), f3(fv.Proportion), f3(fv.Cumulative)})
	}
	_, err := fmt.Fprintln(w, v.Render())
	return err
}

func writeRegression(w io.Writer, r *factor.Regression) error {
	s := newTable("OLS Regression Results: " + r.Dependent)
	s.AppendRows([]table.Row{
		{"No. Observations", r.Observations, "R-squared", f3(r.RSquared)},
		{"Df Model", r.DFModel, "Adj. R-squared", f3(r.AdjRSquared)},
		{"Df Residuals", r.DFResid, "F-statistic", f3(r.FStat)},
		{"Log-Likelihood", f3(r.LogLik), "Prob (F-statistic)", pvalue(r.FPValue)},
		{"AIC", f3(r.AIC), "BIC", f3(r.BIC)},
		{"Durbin-Watson", f3(r.DurbinWatson), "", ""},
	})
	if _, err := fmt.Fprintln(w, s.Render()); err != nil {
		return err
	}

	t := newTable("")
	t.AppendHeader(table.Row{"", "coef", "std err", "t", "P>|t|", "[0.025", "0.975]"})
	for _, term := range r.Terms {
		t.AppendRow(table.Row{term.Name, f4(term.Coef), f4(term.StdErr), f3(term.T), pvalue(term.P), f4(term.CILow), f4(term.CIHigh)})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
