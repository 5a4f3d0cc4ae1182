package factor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"factorlab/market"
)

// InterceptName labels the constant term, as statsmodels' add_constant does.
const InterceptName = "const"

// Term is one regression coefficient.
type Term struct {
	Name   string  `json:"name"`
	Coef   float64 `json:"coef"`
	StdErr float64 `json:"std_err"`
	T      float64 `json:"t"`
	P      float64 `json:"p"`
	CILow  float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
}

// Regression 普通最小二乘回归结果
type Regression struct {
	Dependent    string  `json:"dependent"`
	Terms        []Term  `json:"terms"`
	Observations int     `json:"observations"`
	DFModel      int     `json:"df_model"`
	DFResid      int     `json:"df_resid"`
	RSquared     float64 `json:"r_squared"`
	AdjRSquared  float64 `json:"adj_r_squared"`
	FStat        float64 `json:"f_stat"`
	FPValue      float64 `json:"f_p_value"`
	LogLik       float64 `json:"log_likelihood"`
	AIC          float64 `json:"aic"`
	BIC          float64 `json:"bic"`
	DurbinWatson float64 `json:"durbin_watson"`
}

// Regress attributes the portfolio series to the extracted factor scores by
// OLS with an intercept. Anything other than a non-nil *Extracted returns
// ErrMissingExtraction.
func Regress(portfolio *market.Series, outcome Outcome) (*Regression, error) {
	extracted, ok := outcome.(*Extracted)
	if !ok || extracted == nil || extracted.Scores == nil {
		return nil, ErrMissingExtraction
	}
	scores := extracted.Scores
	if scores.Rows() != portfolio.Len() {
		return nil, fmt.Errorf("factor: %d portfolio observations but %d score rows", portfolio.Len(), scores.Rows())
	}
	for i, d := range scores.Dates {
		if !d.Equal(portfolio.Dates[i]) {
			return nil, fmt.Errorf("factor: portfolio and scores disagree on date at row %d", i)
		}
	}

	res, err := OLS(portfolio.Values, scores.Values, scores.Columns)
	if err != nil {
		return nil, err
	}
	res.Dependent = portfolio.Name
	return res, nil
}

// OLS regresses y on the columns of x plus an intercept.
func OLS(y []float64, x [][]float64, names []string) (*Regression, error) {
	n := len(y)
	k := len(names)
	if len(x) != n {
		return nil, fmt.Errorf("ols: %d responses but %d design rows", n, len(x))
	}
	dfResid := n - k - 1
	if dfResid <= 0 {
		return nil, fmt.Errorf("ols: %d observations cannot fit %d parameters", n, k+1)
	}

	design := mat.NewDense(n, k+1, nil)
	for i, row := range x {
		if len(row) != k {
			return nil, fmt.Errorf("ols: row %d has %d regressors, want %d", i, len(row), k)
		}
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(design)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		return nil, fmt.Errorf("ols: design matrix is rank deficient: %w", err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &beta)
	resid.SubVec(yv, &fitted)

	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)
	ssr := mat.Dot(&resid, &resid)
	sst := 0.0
	for _, v := range y {
		sst += (v - meanY) * (v - meanY)
	}

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, errors.New("ols: X'X is singular")
	}

	sigma2 := ssr / float64(dfResid)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}
	tcrit := tdist.Quantile(0.975)

	terms := make([]Term, k+1)
	for j := 0; j <= k; j++ {
		name := InterceptName
		if j > 0 {
			name = names[j-1]
		}
		coef := beta.AtVec(j)
		se := math.Sqrt(sigma2 * xtxInv.At(j, j))
		t := coef / se
		terms[j] = Term{
			Name:   name,
			Coef:   coef,
			StdErr: se,
			T:      t,
			P:      2 * tdist.Survival(math.Abs(t)),
			CILow:  coef - tcrit*se,
			CIHigh: coef + tcrit*se,
		}
	}

	res := &Regression{
		Terms:        terms,
		Observations: n,
		DFModel:      k,
		DFResid:      dfResid,
	}
	if sst > 0 {
		res.RSquared = 1 - ssr/sst
		res.AdjRSquared = 1 - (1-res.RSquared)*float64(n-1)/float64(dfResid)
	}
	if ssr > 0 {
		res.FStat = ((sst - ssr) / float64(k)) / (ssr / float64(dfResid))
		res.FPValue = distuv.F{D1: float64(k), D2: float64(dfResid)}.Survival(res.FStat)
	} else {
		res.FStat = math.Inf(1)
	}

	nf := float64(n)
	res.LogLik = -nf / 2 * (math.Log(2*math.Pi) + math.Log(ssr/nf) + 1)
	res.AIC = -2*res.LogLik + 2*float64(k+1)
	res.BIC = -2*res.LogLik + math.Log(nf)*float64(k+1)

	if ssr > 0 {
		num := 0.0
		for i := 1; i < n; i++ {
			d := resid.AtVec(i) - resid.AtVec(i-1)
			num += d * d
		}
		res.DurbinWatson = num / ssr
	}
	return res, nil
}

// Coefficient returns the named term.
func (r *Regression) Coefficient(name string) (Term, bool) {
	for _, t := range r.Terms {
		if t.Name == name {
			return t, true
		}
	}
	return Term{}, false
}
