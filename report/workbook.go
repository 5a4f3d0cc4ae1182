package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"factorlab/factor"
	"factorlab/pipeline"
)

const (
	loadingsSheet   = "Loadings"
	varianceSheet   = "Variance"
	regressionSheet = "Regression"
)

// ErrNoLoadings is returned when a workbook is requested for a run whose gate failed.
var ErrNoLoadings = errors.New("report: no loadings to chart")

// WriteWorkbook saves the loadings, the factor variance table and the
// regression terms to an xlsx file, with a clustered column chart of the
// loadings per ticker grouped by factor.
func WriteWorkbook(path string, res *pipeline.Result) error {
	ex, ok := res.Extracted()
	if !ok {
		return ErrNoLoadings
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", loadingsSheet); err != nil {
		return err
	}
	if err := writeLoadingsSheet(f, ex.Loadings); err != nil {
		return fmt.Errorf("loadings sheet: %w", err)
	}
	if err := addLoadingsChart(f, ex.Loadings); err != nil {
		return fmt.Errorf("loadings chart: %w", err)
	}
	if err := writeVarianceSheet(f, ex.Loadings); err != nil {
		return fmt.Errorf("variance sheet: %w", err)
	}
	if res.Regression != nil {
		if err := writeRegressionSheet(f, res.Regression); err != nil {
			return fmt.Errorf("regression sheet: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeLoadingsSheet(f *excelize.File, l *factor.Loadings) error {
	header := []interface{}{"Ticker"}
	for _, name := range l.Factors {
		header = append(header, name)
	}
	header = append(header, "Communality")
	if err := setRow(f, loadingsSheet, 1, header...); err != nil {
		return err
	}
	for i, ticker := range l.Variables {
		row := []interface{}{ticker}
		for _, v := range l.Matrix[i] {
			row = append(row, v)
		}
		row = append(row, l.Communalities[i])
		if err := setRow(f, loadingsSheet, i+2, row...); err != nil {
			return err
		}
	}
	return nil
}

func addLoadingsChart(f *excelize.File, l *factor.Loadings) error {
	last := len(l.Variables) + 1
	categories := fmt.Sprintf("%s!$A$2:$A$%d", loadingsSheet, last)

	series := make([]excelize.ChartSeries, len(l.Factors))
	for j := range l.Factors {
		col, err := excelize.ColumnNumberToName(j + 2)
		if err != nil {
			return err
		}
		series[j] = excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", loadingsSheet, col),
			Categories: categories,
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", loadingsSheet, col, col, last),
		}
	}

	anchor, err := excelize.CoordinatesToCellName(len(l.Factors)+4, 2)
	if err != nil {
		return err
	}
	return f.AddChart(loadingsSheet, anchor, &excelize.Chart{
		Type:   excelize.Col,
		Series: series,
		Title:  []excelize.RichTextRun{{Text: "Factor Loadings by Ticker"}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		XAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Ticker"}}},
		YAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Loading"}}},
		Dimension: excelize.ChartDimension{
			Width:  720,
			Height: 400,
		},
	})
}

func writeVarianceSheet(f *excelize.File, l *factor.Loadings) error {
	if _, err := f.NewSheet(varianceSheet); err != nil {
		return err
	}
	if err := setRow(f, varianceSheet, 1, "Factor", "SS Loadings", "Proportion Var", "Cumulative Var"); err != nil {
		return err
	}
	for i, v := range l.Variance {
		if err := setRow(f, varianceSheet, i+2, v.Factor, v.SSLoadings, v.Proportion, v.Cumulative); err != nil {
			return err
		}
	}
	return nil
}

func writeRegressionSheet(f *excelize.File, r *factor.Regression) error {
	if _, err := f.NewSheet(regressionSheet); err != nil {
		return err
	}
	if err := setRow(f, regressionSheet, 1, "Term", "coef", "std err", "t", "P>|t|", "[0.025", "0.975]"); err != nil {
		return err
	}
	for i, t := range r.Terms {
		if err := setRow(f, regressionSheet, i+2, t.Name, t.Coef, t.StdErr, t.T, t.P, t.CILow, t.CIHigh); err != nil {
			return err
		}
	}
	row := len(r.Terms) + 3
	stats := [][]interface{}{
		{"R-squared", r.RSquared},
		{"Adj. R-squared", r.AdjRSquared},
		{"F-statistic", r.FStat},
		{"Prob (F-statistic)", r.FPValue},
		{"Observations", r.Observations},
	}
	for i, s := range stats {
		if err := setRow(f, regressionSheet, row+i, s...); err != nil {
			return err
		}
	}
	return nil
}
