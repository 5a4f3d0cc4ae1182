// Package pipeline runs the analysis end to end: acquire, clean, compute
// excess returns, standardize, diagnose, gate, extract and attribute.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"factorlab/config"
	"factorlab/db"
	"factorlab/factor"
	"factorlab/logger"
	"factorlab/market"
)

// PortfolioName labels the equal-weight excess-return series.
const PortfolioName = "Portfolio"

// RunRecorder persists a finished run. *db.Store implements it.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *db.Run) (int64, error)
}

// Result carries every intermediate and final product of a run.
type Result struct {
	StartedAt time.Time

	Prices       *market.Table
	RiskFree     *market.Series
	Returns      *market.Table
	Excess       *market.Table
	Standardized *market.Table
	Stats        []factor.ColumnStats
	Portfolio    *market.Series

	Diagnostics   *factor.Diagnostics
	Configured    int
	Factorability *factor.Factorability
	// Outcome is nil for a diagnose-only run.
	Outcome    factor.Outcome
	Regression *factor.Regression

	Issues []QualityIssue
	RunID  int64
}

// Extracted returns the extraction when the gate passed.
func (r *Result) Extracted() (*factor.Extracted, bool) {
	ex, ok := r.Outcome.(*factor.Extracted)
	return ex, ok && ex != nil
}

// Pipeline 因子分析流水线
type Pipeline struct {
	cfg     config.Config
	source  DataSource
	store   RunRecorder
	cleaner *DataCleaner
	log     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Entries carry component=pipeline.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = logger.Named(log, "pipeline")
		}
	}
}

// WithRecorder persists every completed run.
func WithRecorder(store RunRecorder) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithCleaner replaces the default cleaning rules.
func WithCleaner(cleaner *DataCleaner) Option {
	return func(p *Pipeline) {
		p.cleaner = cleaner
	}
}

// New validates cfg and builds a pipeline over source.
func New(cfg config.Config, source DataSource, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(StageConfig, ErrConfig, err)
	}
	if source == nil {
		return nil, fail(StageConfig, ErrConfig, fmt.Errorf("no data source"))
	}
	p := &Pipeline{cfg: cfg, source: source, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.cleaner == nil {
		p.cleaner = NewDataCleaner(logger.Named(p.log, "cleaning"))
	}
	return p, nil
}

// Run executes every stage. A failed factorability gate is a normal result:
// Outcome is *factor.NotFactorable, Regression is nil and err is nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.prepare(ctx)
	if err != nil {
		return nil, err
	}

	a := p.cfg.Analysis
	outcome, err := factor.Gate(res.Standardized, res.Factorability, factor.Options{
		Factors:  a.Factors,
		Method:   a.Method,
		Rotation: a.Rotation,
	})
	if err != nil {
		return nil, classify(StageExtract, err)
	}
	res.Outcome = outcome

	switch o := outcome.(type) {
	case *factor.NotFactorable:
		p.log.Info("data not factorable, skipping extraction and attribution", zap.String("reason", o.Reason))
	case *factor.Extracted:
		p.log.Info("factors extracted",
			zap.Int("factors", len(o.Loadings.Factors)),
			zap.String("method", o.Loadings.Method),
			zap.String("rotation", o.Loadings.Rotation),
			zap.Int("rotation_iterations", o.Loadings.RotationIterations))

		reg, err := factor.Regress(res.Portfolio, o)
		if err != nil {
			return nil, classify(StageRegress, err)
		}
		res.Regression = reg
		p.log.Info("attribution regression",
			zap.Float64("r_squared", reg.RSquared),
			zap.Float64("adj_r_squared", reg.AdjRSquared),
			zap.Int("observations", reg.Observations))
	}

	if err := p.persist(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Diagnose runs through the factorability assessment without extracting.
func (p *Pipeline) Diagnose(ctx context.Context) (*Result, error) {
	return p.prepare(ctx)
}

func (p *Pipeline) prepare(ctx context.Context) (*Result, error) {
	cfg := p.cfg
	res := &Result{StartedAt: time.Now(), Configured: cfg.Analysis.Factors}
	p.log.Info("starting analysis",
		zap.Strings("tickers", cfg.Tickers),
		zap.Stringer("start", cfg.Start),
		zap.Stringer("end", cfg.End),
		zap.String("risk_free", cfg.RiskFree.SeriesID))

	p.cleaner.ClearIssues()
	raw, err := acquire(ctx, p.source, cfg, p.log)
	if err != nil {
		return nil, err
	}

	prices, err := market.PriceTable(raw.prices, cfg.Tickers)
	if err != nil {
		return nil, fail(StageAcquire, ErrAcquisition, err)
	}
	res.Prices = prices
	if err := p.cleaner.CheckPrices(prices); err != nil {
		return nil, classify(StageClean, err)
	}

	yields := market.YieldSeries(cfg.RiskFree.SeriesID, raw.yields)
	if yields.Len() == 0 {
		return nil, fail(StageAcquire, ErrAcquisition, fmt.Errorf("risk-free series %s has no observations", cfg.RiskFree.SeriesID))
	}
	res.RiskFree = market.HoldingReturn(yields, cfg.RiskFree.Tenor, cfg.RiskFree.DayCount)

	res.Returns = market.PctChange(prices)
	if err := p.cleaner.CheckReturns(res.Returns); err != nil {
		return nil, classify(StageClean, err)
	}
	res.Issues = p.cleaner.GetIssues()

	res.Excess, err = market.Excess(res.Returns, res.RiskFree)
	if err != nil {
		return nil, classify(StageReturns, err)
	}
	res.Portfolio = market.EqualWeight(res.Excess, PortfolioName)
	p.log.Info("excess returns",
		zap.Int("observations", res.Excess.Rows()),
		zap.Time("first", res.Excess.Dates[0]),
		zap.Time("last", res.Excess.Dates[res.Excess.Rows()-1]))

	// a constant return column is degenerate even though the risk-free shift
	// gives its excess return some spread
	if _, err := NewConstantReturnRule().Apply(res.Returns); err != nil {
		return nil, classify(StageStandardize, err)
	}
	res.Standardized, res.Stats, err = factor.Standardize(res.Excess)
	if err != nil {
		return nil, classify(StageStandardize, err)
	}

	res.Diagnostics, err = factor.Diagnose(res.Standardized, cfg.Analysis.VarianceThreshold)
	if err != nil {
		return nil, classify(StageDiagnose, err)
	}
	d := res.Diagnostics
	fields := []zap.Field{
		zap.Int("kaiser", d.Kaiser),
		zap.Int("cumulative", d.Cumulative),
		zap.Float64("variance_threshold", d.Threshold),
		zap.Int("configured", res.Configured),
	}
	p.log.Info("suggested factor counts", fields...)
	if d.Kaiser != res.Configured || d.Cumulative != res.Configured {
		p.log.Warn("suggested factor counts differ from the configured count; extraction uses the configured count", fields...)
	}

	res.Factorability, err = factor.Assess(res.Standardized, cfg.Analysis.BartlettAlpha, cfg.Analysis.KMOMin)
	if err != nil {
		return nil, classify(StageGate, err)
	}
	f := res.Factorability
	p.log.Info("factorability",
		zap.Float64("chi_square", f.ChiSquare),
		zap.Float64("dof", f.DegreesOfFreedom),
		zap.Float64("p_value", f.PValue),
		zap.Float64("kmo", f.KMO),
		zap.Bool("passed", f.Passed))
	return res, nil
}

func (p *Pipeline) persist(ctx context.Context, res *Result) error {
	if p.store == nil {
		return nil
	}
	run := &db.Run{
		StartedAt:     res.StartedAt,
		Tickers:       p.cfg.Tickers,
		Start:         p.cfg.Start.Time,
		End:           p.cfg.End.Time,
		Diagnostics:   res.Diagnostics,
		Configured:    res.Configured,
		Factorability: res.Factorability,
		Regression:    res.Regression,
	}
	if ex, ok := res.Extracted(); ok {
		run.Loadings = ex.Loadings
	}
	id, err := p.store.SaveRun(ctx, run)
	if err != nil {
		return fail(StagePersist, ErrStorage, err)
	}
	res.RunID = id
	p.log.Info("run recorded", zap.Int64("run_id", id))
	return nil
}
