package factor

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConverged is returned when the extraction optimizer or the rotation
	// exhausts its iterations.
	ErrNotConverged = errors.New("factor: did not converge")

	// ErrMissingExtraction is returned when attribution is requested without a
	// successful extraction.
	ErrMissingExtraction = errors.New("factor: attribution requires extracted factor scores")

	// ErrSingularCorrelation 相关矩阵奇异，无法求逆或行列式
	ErrSingularCorrelation = errors.New("factor: correlation matrix is singular")
)

// DegenerateInputError identifies a column that cannot be standardized.
type DegenerateInputError struct {
	Column string
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input in column %s: %s", e.Column, e.Reason)
}
