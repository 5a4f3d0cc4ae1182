package factor

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"factorlab/market"
)

func dense(t *market.Table) *mat.Dense {
	return mat.NewDense(t.Rows(), t.Cols(), t.Flatten())
}

// correlation returns the Pearson correlation matrix of t's columns.
func correlation(t *market.Table) *mat.SymDense {
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, dense(t), nil)
	return &corr
}

func inverse(m mat.Matrix) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, ErrSingularCorrelation
	}
	return &inv, nil
}

// eigenDesc returns eigenvalues sorted descending with matching eigenvector columns.
func eigenDesc(m *mat.SymDense, vectors bool) ([]float64, *mat.Dense, bool) {
	var es mat.EigenSym
	if !es.Factorize(m, vectors) {
		return nil, nil, false
	}
	vals := es.Values(nil)
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] > vals[order[b]] })

	sorted := make([]float64, len(vals))
	for i, k := range order {
		sorted[i] = vals[k]
	}
	if !vectors {
		return sorted, nil, true
	}

	var raw mat.Dense
	es.VectorsTo(&raw)
	n := len(vals)
	vecs := mat.NewDense(n, n, nil)
	for i, k := range order {
		vecs.SetCol(i, mat.Col(nil, k, &raw))
	}
	return sorted, vecs, true
}

func rowSumSquares(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			out[i] += v * v
		}
	}
	return out
}

func toRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
