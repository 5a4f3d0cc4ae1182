package factor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"factorlab/market"
)

const (
	MethodMinres    = "minres"
	MethodPrincipal = "principal"

	RotationVarimax = "varimax"
	RotationNone    = "none"

	uniquenessMin = 0.005
	uniquenessMax = 1.0

	// eigenFloor keeps square roots of near-zero eigenvalues real.
	eigenFloor = 100 * 2.220446049250313e-16
)

// Options configures a factor extraction.
type Options struct {
	Factors  int
	Method   string
	Rotation string

	// MaxIter bounds the minres optimizer's major iterations. Zero means 20000.
	MaxIter int
}

// FactorVariance is the variance explained by one extracted factor.
type FactorVariance struct {
	Factor     string  `json:"factor"`
	SSLoadings float64 `json:"ss_loadings"`
	Proportion float64 `json:"proportion"`
	Cumulative float64 `json:"cumulative"`
}

// Loadings 因子载荷矩阵（变量 × 因子）
type Loadings struct {
	Variables     []string         `json:"variables"`
	Factors       []string         `json:"factors"`
	Matrix        [][]float64      `json:"matrix"`
	Communalities []float64        `json:"communalities"`
	Uniquenesses  []float64        `json:"uniquenesses"`
	Variance      []FactorVariance `json:"variance"`
	Method        string           `json:"method"`
	Rotation      string           `json:"rotation"`
	// RotationIterations is zero when no rotation ran.
	RotationIterations int `json:"rotation_iterations"`
}

// FactorNames returns Factor1..Factork.
func FactorNames(k int) []string {
	names := make([]string, k)
	for i := range names {
		names[i] = fmt.Sprintf("Factor%d", i+1)
	}
	return names
}

// Extract fits a common-factor model with opts.Factors factors to the
// standardized table z, rotates the loadings and computes regression-method
// factor scores. Every step is deterministic.
func Extract(z *market.Table, opts Options) (*Extracted, error) {
	p := z.Cols()
	if opts.Factors < 1 || opts.Factors > p {
		return nil, fmt.Errorf("factor: %d factors requested for %d variables", opts.Factors, p)
	}
	if opts.Method == "" {
		opts.Method = MethodMinres
	}
	if opts.Rotation == "" {
		opts.Rotation = RotationVarimax
	}

	corr := correlation(z)
	corrInv, err := inverse(corr)
	if err != nil {
		return nil, err
	}

	var unrotated *mat.Dense
	switch opts.Method {
	case MethodMinres:
		unrotated, err = fitMinres(corr, corrInv, opts)
	case MethodPrincipal:
		unrotated, err = fitPrincipal(corr, opts.Factors)
	default:
		return nil, fmt.Errorf("factor: unsupported method %q", opts.Method)
	}
	if err != nil {
		return nil, err
	}

	rotated := unrotated
	iterations := 0
	switch opts.Rotation {
	case RotationVarimax:
		rotated, iterations, err = varimax(unrotated, varimaxMaxIter, varimaxTol)
		if err != nil {
			return nil, err
		}
	case RotationNone:
	default:
		return nil, fmt.Errorf("factor: unsupported rotation %q", opts.Rotation)
	}
	alignSigns(rotated)

	loadings := describe(z.Columns, rotated, opts)
	loadings.RotationIterations = iterations

	scores, err := regressionScores(z, corrInv, rotated, loadings.Factors)
	if err != nil {
		return nil, err
	}
	return &Extracted{Loadings: loadings, Scores: scores}, nil
}

func describe(variables []string, l *mat.Dense, opts Options) *Loadings {
	p, k := l.Dims()
	out := &Loadings{
		Variables:     append([]string(nil), variables...),
		Factors:       FactorNames(k),
		Matrix:        toRows(l),
		Communalities: rowSumSquares(l),
		Uniquenesses:  make([]float64, p),
		Variance:      make([]FactorVariance, k),
		Method:        opts.Method,
		Rotation:      opts.Rotation,
	}
	for i, h := range out.Communalities {
		out.Uniquenesses[i] = 1 - h
	}
	cum := 0.0
	for j := 0; j < k; j++ {
		ss := 0.0
		for i := 0; i < p; i++ {
			ss += l.At(i, j) * l.At(i, j)
		}
		prop := ss / float64(p)
		cum += prop
		out.Variance[j] = FactorVariance{Factor: out.Factors[j], SSLoadings: ss, Proportion: prop, Cumulative: cum}
	}
	return out
}

// smc returns squared multiple correlations 1 - 1/diag(R⁻¹), the usual
// initial communality estimates.
func smc(corrInv *mat.Dense) []float64 {
	p, _ := corrInv.Dims()
	out := make([]float64, p)
	for i := range out {
		out[i] = 1 - 1/corrInv.At(i, i)
	}
	return out
}

// reducedLoadings replaces the diagonal of corr with communalities and
// returns the top-k principal loadings of the reduced matrix.
func reducedLoadings(corr *mat.SymDense, communalities []float64, k int) (*mat.Dense, *mat.SymDense, error) {
	reduced := mat.NewSymDense(corr.SymmetricDim(), nil)
	reduced.CopySym(corr)
	for i, h := range communalities {
		reduced.SetSym(i, i, h)
	}

	vals, vecs, ok := eigenDesc(reduced, true)
	if !ok {
		return nil, nil, errors.New("factor: eigen decomposition of reduced correlation failed")
	}
	p := len(vals)
	l := mat.NewDense(p, k, nil)
	for j := 0; j < k; j++ {
		s := math.Sqrt(math.Max(vals[j], eigenFloor))
		for i := 0; i < p; i++ {
			l.Set(i, j, vecs.At(i, j)*s)
		}
	}
	return l, reduced, nil
}

// ulsObjective is the sum of squared residuals between the reduced
// correlation matrix and the k-factor reproduction ΛΛᵀ.
func ulsObjective(corr *mat.SymDense, psi []float64, k int) float64 {
	communalities := make([]float64, len(psi))
	for i, u := range psi {
		communalities[i] = 1 - u
	}
	l, reduced, err := reducedLoadings(corr, communalities, k)
	if err != nil {
		return math.Inf(1)
	}
	var model mat.Dense
	model.Mul(l, l.T())
	p := len(psi)
	sum := 0.0
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			r := reduced.At(i, j) - model.At(i, j)
			sum += r * r
		}
	}
	return sum
}

// uniquenesses are searched in an unbounded logit space mapped onto
// [uniquenessMin, uniquenessMax].
func toUniqueness(x float64) float64 {
	return uniquenessMin + (uniquenessMax-uniquenessMin)/(1+math.Exp(-x))
}

func fromUniqueness(u float64) float64 {
	const margin = 1e-6
	s := (u - uniquenessMin) / (uniquenessMax - uniquenessMin)
	s = math.Min(math.Max(s, margin), 1-margin)
	return math.Log(s / (1 - s))
}

// fitMinres minimizes the ULS objective over the uniquenesses, starting from
// 1 - SMC, then extracts loadings from the optimal reduced matrix.
func fitMinres(corr *mat.SymDense, corrInv *mat.Dense, opts Options) (*mat.Dense, error) {
	start := smc(corrInv)
	x0 := make([]float64, len(start))
	for i, h := range start {
		x0[i] = fromUniqueness(1 - h)
	}

	psi := make([]float64, len(x0))
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i, v := range x {
				psi[i] = toUniqueness(v)
			}
			return ulsObjective(corr, psi, opts.Factors)
		},
	}
	maxIter := opts.MaxIter
	if maxIter == 0 {
		maxIter = 20000
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if err != nil {
		return nil, fmt.Errorf("minres: %v: %w", err, ErrNotConverged)
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.FunctionThreshold, optimize.GradientThreshold, optimize.StepConvergence:
	default:
		return nil, fmt.Errorf("minres: stopped with status %v: %w", result.Status, ErrNotConverged)
	}

	communalities := make([]float64, len(result.X))
	for i, v := range result.X {
		communalities[i] = 1 - toUniqueness(v)
	}
	l, _, err := reducedLoadings(corr, communalities, opts.Factors)
	return l, err
}

// fitPrincipal returns the non-iterated principal loadings: the top-k
// eigenvectors of the full correlation matrix scaled by the square roots of
// their eigenvalues, i.e. the correlations of each variable with the first k
// principal components.
func fitPrincipal(corr *mat.SymDense, k int) (*mat.Dense, error) {
	vals, vecs, ok := eigenDesc(corr, true)
	if !ok {
		return nil, fmt.Errorf("principal: eigen decomposition failed: %w", ErrNotConverged)
	}
	p := len(vals)
	l := mat.NewDense(p, k, nil)
	for j := 0; j < k; j++ {
		s := math.Sqrt(math.Max(vals[j], eigenFloor))
		for i := 0; i < p; i++ {
			l.Set(i, j, vecs.At(i, j)*s)
		}
	}
	return l, nil
}

// regressionScores computes Thurstone regression scores Z · R⁻¹ · Λ.
func regressionScores(z *market.Table, corrInv, loadings *mat.Dense, factors []string) (*market.Table, error) {
	var weights, scores mat.Dense
	weights.Mul(corrInv, loadings)
	scores.Mul(dense(z), &weights)
	return market.NewTable(z.Dates, factors, toRows(&scores))
}
