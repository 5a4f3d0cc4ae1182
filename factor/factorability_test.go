package factor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestBartlettTwoVariables(t *testing.T) {
	corr := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	chi, dof, p, err := bartlett(corr, 50)
	require.NoError(t, err)

	assert.InDelta(t, -math.Log(0.75)*47.5, chi, 1e-12)
	assert.Equal(t, 1.0, dof)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 0.001)
}

func TestBartlettSingular(t *testing.T) {
	corr := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	_, _, _, err := bartlett(corr, 50)
	assert.ErrorIs(t, err, ErrSingularCorrelation)
}

func TestKMOTwoVariablesIsOneHalf(t *testing.T) {
	// with two variables the partial correlation equals the correlation
	corr := mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1})
	total, perItem, err := kmo(corr)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, total, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, perItem, 1e-12)
}

func TestAssessCorrelatedPasses(t *testing.T) {
	z := standardized(t, latentTable(t, 240, 8, 3, 42))
	f, err := Assess(z, 0.05, 0.6)
	require.NoError(t, err)

	assert.True(t, f.Passed, f.Reason)
	assert.Empty(t, f.Reason)
	assert.Less(t, f.PValue, 0.05)
	assert.GreaterOrEqual(t, f.KMO, 0.6)
	assert.Equal(t, 28.0, f.DegreesOfFreedom)
	assert.Len(t, f.KMOPerItem, 8)
	for _, v := range f.KMOPerItem {
		assert.True(t, v > 0 && v <= 1)
	}
}

func TestAssessIndependentFails(t *testing.T) {
	z := standardized(t, independentTable(t, 120, 8, 9))
	f, err := Assess(z, 0.05, 0.6)
	require.NoError(t, err)

	assert.False(t, f.Passed)
	assert.NotEmpty(t, f.Reason)
}

func TestAssessIsDeterministic(t *testing.T) {
	z := standardized(t, latentTable(t, 120, 8, 3, 11))
	a, err := Assess(z, 0.05, 0.6)
	require.NoError(t, err)
	b, err := Assess(z, 0.05, 0.6)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
