package factor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func mixedLoadings() *mat.Dense {
	return mat.NewDense(6, 2, []float64{
		0.70, 0.45,
		0.65, 0.40,
		0.72, 0.38,
		0.55, -0.50,
		0.60, -0.42,
		0.50, -0.48,
	})
}

func TestVarimaxPreservesCommunalities(t *testing.T) {
	l := mixedLoadings()
	rotated, iters, err := varimax(l, varimaxMaxIter, varimaxTol)
	require.NoError(t, err)
	assert.Positive(t, iters)
	assert.InDeltaSlice(t, rowSumSquares(l), rowSumSquares(rotated), 1e-9)
}

func TestVarimaxSimplifiesStructure(t *testing.T) {
	l := mixedLoadings()
	rotated, _, err := varimax(l, varimaxMaxIter, varimaxTol)
	require.NoError(t, err)
	alignSigns(rotated)

	// each block loads mostly on one factor after rotation
	for i := 0; i < 3; i++ {
		a, b := rotated.At(i, 0), rotated.At(i, 1)
		c, d := rotated.At(i+3, 0), rotated.At(i+3, 1)
		assert.NotEqual(t, a*a > b*b, c*c > d*d, "row %d and %d share a dominant factor", i, i+3)
	}
}

func TestVarimaxSingleFactorUnchanged(t *testing.T) {
	l := mat.NewDense(3, 1, []float64{0.5, -0.6, 0.7})
	rotated, iters, err := varimax(l, varimaxMaxIter, varimaxTol)
	require.NoError(t, err)
	assert.Equal(t, 0, iters)
	assert.True(t, mat.Equal(l, rotated))
}

func TestVarimaxIterationLimit(t *testing.T) {
	_, _, err := varimax(mixedLoadings(), 1, varimaxTol)
	assert.ErrorIs(t, err, ErrNotConverged)
}

func TestAlignSigns(t *testing.T) {
	l := mat.NewDense(3, 2, []float64{
		-0.8, 0.1,
		-0.7, 0.2,
		0.1, -0.1,
	})
	alignSigns(l)
	assert.Equal(t, []float64{0.8, 0.7, -0.1}, mat.Col(nil, 0, l))
	assert.Equal(t, []float64{0.1, 0.2, -0.1}, mat.Col(nil, 1, l))
}
