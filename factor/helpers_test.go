package factor

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"factorlab/market"
)

func monthEnds(n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = time.Date(2010, time.Month(i+2), 0, 0, 0, 0, 0, time.UTC)
	}
	return dates
}

func columnNames(p int) []string {
	names := make([]string, p)
	for j := range names {
		names[j] = fmt.Sprintf("V%d", j+1)
	}
	return names
}

// latentTable draws n rows of p variables driven by one common factor and k
// group factors, the shape of a small equity universe.
func latentTable(t *testing.T, n, p, k int, seed int64) *market.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([][]float64, n)
	for i := range values {
		common := rng.NormFloat64()
		groups := make([]float64, k)
		for g := range groups {
			groups[g] = rng.NormFloat64()
		}
		row := make([]float64, p)
		for j := range row {
			row[j] = 0.6*common + 0.6*groups[j%k] + 0.5*rng.NormFloat64()
		}
		values[i] = row
	}
	table, err := market.NewTable(monthEnds(n), columnNames(p), values)
	require.NoError(t, err)
	return table
}

func independentTable(t *testing.T, n, p int, seed int64) *market.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, p)
		for j := range values[i] {
			values[i][j] = rng.NormFloat64()
		}
	}
	table, err := market.NewTable(monthEnds(n), columnNames(p), values)
	require.NoError(t, err)
	return table
}

func standardized(t *testing.T, table *market.Table) *market.Table {
	t.Helper()
	z, _, err := Standardize(table)
	require.NoError(t, err)
	return z
}

// factorModel returns the correlation matrix ΛΛᵀ + Ψ implied by loadings.
func factorModel(loadings [][]float64) *mat.SymDense {
	p := len(loadings)
	r := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := 0.0
			for k := range loadings[i] {
				v += loadings[i][k] * loadings[j][k]
			}
			if i == j {
				v = 1
			}
			r.SetSym(i, j, v)
		}
	}
	return r
}

// exactTable draws n rows whose sample correlation matrix is exactly r:
// centered noise is orthonormalized and then mixed by the Cholesky factor.
func exactTable(t *testing.T, n int, r *mat.SymDense, seed int64) *market.Table {
	t.Helper()
	p := r.SymmetricDim()
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(n, p, nil)
	for j := 0; j < p; j++ {
		mean := 0.0
		col := make([]float64, n)
		for i := range col {
			col[i] = rng.NormFloat64()
			mean += col[i]
		}
		mean /= float64(n)
		for i, v := range col {
			x.Set(i, j, v-mean)
		}
	}

	var qr mat.QR
	qr.Factorize(x)
	var q mat.Dense
	qr.QTo(&q)

	var chol mat.Cholesky
	require.True(t, chol.Factorize(r))
	var u mat.TriDense
	chol.UTo(&u)

	var out mat.Dense
	out.Mul(q.Slice(0, n, 0, p), &u)
	values := make([][]float64, n)
	for i := range values {
		values[i] = mat.Row(nil, i, &out)
	}
	table, err := market.NewTable(monthEnds(n), columnNames(p), values)
	require.NoError(t, err)
	return table
}
