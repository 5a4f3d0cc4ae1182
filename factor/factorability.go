package factor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"factorlab/market"
)

// Factorability holds the sampling-adequacy tests that gate extraction.
type Factorability struct {
	Observations int `json:"observations"`
	Variables    int `json:"variables"`

	ChiSquare        float64 `json:"chi_square"`
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`

	KMO        float64   `json:"kmo"`
	KMOPerItem []float64 `json:"kmo_per_item"`

	BartlettAlpha float64 `json:"bartlett_alpha"`
	KMOMin        float64 `json:"kmo_min"`
	Passed        bool    `json:"passed"`
	Reason        string  `json:"reason,omitempty"`
}

// Assess runs Bartlett's sphericity test and the Kaiser-Meyer-Olkin measure on
// z. Passed is true only when p < alpha and KMO >= kmoMin. A failed gate is a
// normal result, not an error; errors are reserved for a singular
// correlation matrix.
func Assess(z *market.Table, alpha, kmoMin float64) (*Factorability, error) {
	corr := correlation(z)
	n, p := z.Rows(), z.Cols()

	chi, dof, pValue, err := bartlett(corr, n)
	if err != nil {
		return nil, err
	}
	total, perItem, err := kmo(corr)
	if err != nil {
		return nil, err
	}

	f := &Factorability{
		Observations:     n,
		Variables:        p,
		ChiSquare:        chi,
		DegreesOfFreedom: dof,
		PValue:           pValue,
		KMO:              total,
		KMOPerItem:       perItem,
		BartlettAlpha:    alpha,
		KMOMin:           kmoMin,
	}

	bartlettOK := pValue < alpha
	kmoOK := total >= kmoMin
	f.Passed = bartlettOK && kmoOK
	switch {
	case !bartlettOK && !kmoOK:
		f.Reason = fmt.Sprintf("Bartlett p-value %.4f >= %.2f and KMO %.3f < %.2f", pValue, alpha, total, kmoMin)
	case !bartlettOK:
		f.Reason = fmt.Sprintf("Bartlett p-value %.4f >= %.2f", pValue, alpha)
	case !kmoOK:
		f.Reason = fmt.Sprintf("KMO %.3f < %.2f", total, kmoMin)
	}
	return f, nil
}

// bartlett: chi2 = -ln|R| * (n - 1 - (2p+5)/6), dof = p(p-1)/2.
func bartlett(corr *mat.SymDense, n int) (chi, dof, pValue float64, err error) {
	p := corr.SymmetricDim()
	logDet, sign := mat.LogDet(corr)
	if sign <= 0 || math.IsInf(logDet, 0) || math.IsNaN(logDet) {
		return 0, 0, 0, ErrSingularCorrelation
	}
	chi = -logDet * (float64(n) - 1 - float64(2*p+5)/6)
	dof = float64(p*(p-1)) / 2
	pValue = distuv.ChiSquared{K: dof}.Survival(chi)
	return chi, dof, pValue, nil
}

// kmo compares squared correlations with squared anti-image (partial)
// correlations derived from the inverse correlation matrix.
func kmo(corr *mat.SymDense) (float64, []float64, error) {
	inv, err := inverse(corr)
	if err != nil {
		return 0, nil, err
	}
	p := corr.SymmetricDim()

	corrSum := make([]float64, p)
	partialSum := make([]float64, p)
	var corrTotal, partialTotal float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			if i == j {
				continue
			}
			r := corr.At(i, j)
			partial := -inv.At(i, j) / math.Sqrt(inv.At(i, i)*inv.At(j, j))
			corrSum[j] += r * r
			partialSum[j] += partial * partial
		}
	}

	perItem := make([]float64, p)
	for j := 0; j < p; j++ {
		perItem[j] = corrSum[j] / (corrSum[j] + partialSum[j])
		corrTotal += corrSum[j]
		partialTotal += partialSum[j]
	}
	return corrTotal / (corrTotal + partialTotal), perItem, nil
}
