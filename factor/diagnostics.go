package factor

import (
	"errors"

	"factorlab/market"
)

// Diagnostics 相关矩阵特征值分析
type Diagnostics struct {
	Eigenvalues        []float64 `json:"eigenvalues"`
	CumulativeVariance []float64 `json:"cumulative_variance"`
	Threshold          float64   `json:"threshold"`
	// Kaiser counts eigenvalues strictly greater than 1.
	Kaiser int `json:"kaiser"`
	// Cumulative is the smallest k whose top-k eigenvalues explain Threshold of
	// the total variance.
	Cumulative int `json:"cumulative"`
}

// Diagnose eigen-decomposes the correlation matrix of z and derives the two
// advisory factor counts. The counts never feed extraction.
func Diagnose(z *market.Table, threshold float64) (*Diagnostics, error) {
	if z.Cols() == 0 {
		return nil, errors.New("factor: no columns to diagnose")
	}
	eigs, _, ok := eigenDesc(correlation(z), false)
	if !ok {
		return nil, errors.New("factor: eigen decomposition failed")
	}

	d := &Diagnostics{
		Eigenvalues:        eigs,
		CumulativeVariance: make([]float64, len(eigs)),
		Threshold:          threshold,
	}
	p := float64(len(eigs))
	sum := 0.0
	for i, v := range eigs {
		if v > 1 {
			d.Kaiser++
		}
		sum += v
		d.CumulativeVariance[i] = sum / p
	}

	d.Cumulative = len(eigs)
	for i, c := range d.CumulativeVariance {
		if c >= threshold {
			d.Cumulative = i + 1
			break
		}
	}
	return d, nil
}
