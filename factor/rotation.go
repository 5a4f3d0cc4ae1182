package factor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	varimaxMaxIter = 1000
	varimaxTol     = 1e-5
)

// varimax applies Kaiser-normalized varimax rotation to the p×k loadings.
// It returns the rotated loadings and the iterations used. A rotation that
// has not stabilized after maxIter iterations is reported as ErrNotConverged.
func varimax(loadings *mat.Dense, maxIter int, tol float64) (*mat.Dense, int, error) {
	p, k := loadings.Dims()
	if k < 2 {
		return mat.DenseCopyOf(loadings), 0, nil
	}

	// Kaiser normalization
	norms := make([]float64, p)
	x := mat.NewDense(p, k, nil)
	for i := 0; i < p; i++ {
		norms[i] = math.Sqrt(mat.Dot(loadings.RowView(i), loadings.RowView(i)))
		for j := 0; j < k; j++ {
			if norms[i] > 0 {
				x.Set(i, j, loadings.At(i, j)/norms[i])
			}
		}
	}

	rotation := mat.NewDense(k, k, nil)
	for j := 0; j < k; j++ {
		rotation.Set(j, j, 1)
	}

	var (
		basis, target, transformed mat.Dense
		u, v                       mat.Dense
		svd                        mat.SVD
		d                          float64
	)
	target.ReuseAs(p, k)
	for iter := 1; iter <= maxIter; iter++ {
		old := d
		basis.Mul(x, rotation)

		colSS := make([]float64, k)
		for i := 0; i < p; i++ {
			for j := 0; j < k; j++ {
				b := basis.At(i, j)
				colSS[j] += b * b
			}
		}
		for i := 0; i < p; i++ {
			for j := 0; j < k; j++ {
				b := basis.At(i, j)
				target.Set(i, j, b*b*b-b*colSS[j]/float64(p))
			}
		}
		transformed.Mul(x.T(), &target)

		if !svd.Factorize(&transformed, mat.SVDFull) {
			return nil, iter, fmt.Errorf("varimax: svd failed at iteration %d: %w", iter, ErrNotConverged)
		}
		svd.UTo(&u)
		svd.VTo(&v)
		rotation.Mul(&u, v.T())

		d = 0
		for _, s := range svd.Values(nil) {
			d += s
		}
		if old != 0 && d/old < 1+tol {
			var rotated mat.Dense
			rotated.Mul(x, rotation)
			for i := 0; i < p; i++ {
				for j := 0; j < k; j++ {
					rotated.Set(i, j, rotated.At(i, j)*norms[i])
				}
			}
			return &rotated, iter, nil
		}
	}
	return nil, maxIter, fmt.Errorf("varimax: %d iterations: %w", maxIter, ErrNotConverged)
}

// alignSigns flips each factor so that its loadings sum to a non-negative value.
func alignSigns(loadings *mat.Dense) {
	p, k := loadings.Dims()
	for j := 0; j < k; j++ {
		sum := 0.0
		for i := 0; i < p; i++ {
			sum += loadings.At(i, j)
		}
		if sum < 0 {
			for i := 0; i < p; i++ {
				loadings.Set(i, j, -loadings.At(i, j))
			}
		}
	}
}
