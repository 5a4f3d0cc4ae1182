package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorlab/factor"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs", "factorlab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func baseRun() *Run {
	return &Run{
		StartedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Tickers:   []string{"AAPL", "MSFT"},
		Start:     time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Diagnostics: &factor.Diagnostics{
			Eigenvalues:        []float64{1.6, 0.4},
			CumulativeVariance: []float64{0.8, 1},
			Kaiser:             1,
			Cumulative:         1,
		},
		Configured: 1,
		Factorability: &factor.Factorability{
			Observations: 119, ChiSquare: 80.2, PValue: 1e-9, KMO: 0.5, Reason: "KMO 0.500 < 0.60",
		},
	}
}

func TestSaveRunNotFactorable(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	id, err := s.SaveRun(ctx, baseRun())
	require.NoError(t, err)
	assert.Positive(t, id)

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runs[0].Tickers)
	assert.False(t, runs[0].Passed)
	assert.Equal(t, "KMO 0.500 < 0.60", runs[0].Reason)
	assert.True(t, math.IsNaN(runs[0].RSquared))

	loadings, err := s.Loadings(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, loadings)
}

func TestSaveRunExtracted(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	run := baseRun()
	run.Factorability.Passed = true
	run.Factorability.Reason = ""
	run.Loadings = &factor.Loadings{
		Variables: []string{"AAPL", "MSFT"},
		Factors:   []string{"Factor1"},
		Matrix:    [][]float64{{0.81}, {0.77}},
	}
	run.Regression = &factor.Regression{
		RSquared: 0.93,
		Terms: []factor.Term{
			{Name: factor.InterceptName, Coef: 0.001, StdErr: 0.002, P: 0.6},
			{Name: "Factor1", Coef: 0.04, StdErr: 0.003, P: 1e-12},
		},
	}
	first, err := s.SaveRun(ctx, baseRun())
	require.NoError(t, err)
	id, err := s.SaveRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	runs, err := s.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.NotEqual(t, first, runs[0].ID)
	assert.InDelta(t, 0.93, runs[0].RSquared, 1e-12)

	loadings, err := s.Loadings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.77, loadings["MSFT"]["Factor1"])

	terms, err := s.Coefficients(ctx, id)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, factor.InterceptName, terms[0].Name)
	assert.Equal(t, 0.04, terms[1].Coef)
}

func TestSaveRunRequiresResults(t *testing.T) {
	s := openTemp(t)
	_, err := s.SaveRun(context.Background(), &Run{})
	assert.Error(t, err)
}
