package report

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"factorlab/config"
	"factorlab/db"
	"factorlab/market/providers"
	"factorlab/pipeline"
)

func runSynthetic(t *testing.T, independent bool) *pipeline.Result {
	t.Helper()
	cfg := config.Default()
	cfg.Source.Kind = config.SourceSynthetic

	sp := providers.NewSyntheticProvider(providers.SyntheticOptions{
		Seed:        cfg.Source.Seed,
		Symbols:     cfg.Tickers,
		Independent: independent,
	})
	pm := providers.NewProviderManager(nil)
	pm.AddPriceSource(sp)
	pm.AddYieldSource(sp)

	p, err := pipeline.New(cfg, pm)
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestWriteExtracted(t *testing.T) {
	res := runSynthetic(t, false)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res))
	out := buf.String()

	for _, want := range []string{
		"Cumulative Variance",
		"Bartlett",
		"KMO per ticker",
		"Factor loadings (minres, varimax)",
		"Factor variance",
		"OLS Regression Results: Portfolio",
		"const",
		"Factor3",
		"PFE",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "not suitable")
}

func TestWriteNotFactorable(t *testing.T) {
	res := runSynthetic(t, true)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "Data is not suitable for factor analysis")
	assert.Contains(t, out, "KMO per ticker")
	assert.NotContains(t, out, "OLS Regression Results")
}

func TestPValueFormatting(t *testing.T) {
	assert.Equal(t, "0.0312", pvalue(0.03124))
	assert.Equal(t, "1.20e-07", pvalue(1.2e-7))
	assert.Equal(t, "1,234.500", f3(1234.5))
}

func TestWriteWorkbook(t *testing.T) {
	res := runSynthetic(t, false)
	path := filepath.Join(t.TempDir(), "out", "loadings.xlsx")
	require.NoError(t, WriteWorkbook(path, res))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{loadingsSheet, varianceSheet, regressionSheet}, f.GetSheetList())

	header, err := f.GetCellValue(loadingsSheet, "D1")
	require.NoError(t, err)
	assert.Equal(t, "Factor3", header)

	ticker, err := f.GetCellValue(loadingsSheet, "A9")
	require.NoError(t, err)
	assert.Equal(t, "PFE", ticker)

	term, err := f.GetCellValue(regressionSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "const", term)
}

func TestWriteWorkbookRequiresExtraction(t *testing.T) {
	res := runSynthetic(t, true)
	path := filepath.Join(t.TempDir(), "loadings.xlsx")
	assert.ErrorIs(t, WriteWorkbook(path, res), ErrNoLoadings)
	assert.NoFileExists(t, path)
}

func TestWriteHistory(t *testing.T) {
	runs := []db.RunSummary{
		{ID: 2, StartedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), Tickers: []string{"AAPL", "KO"}, KMO: 0.41, PValue: 0.3, RSquared: math.NaN()},
		{ID: 1, StartedAt: time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), Tickers: []string{"AAPL", "KO"}, KMO: 0.81, PValue: 1e-9, Passed: true, RSquared: 0.93},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, runs))
	out := buf.String()

	assert.Contains(t, out, "2026-03-01 09:30")
	assert.Contains(t, out, "AAPL,KO")
	assert.Contains(t, out, "0.930")
	assert.Contains(t, out, "fail")
}
