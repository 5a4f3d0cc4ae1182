package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"factorlab/config"
	"factorlab/logger"
	"factorlab/market"
	"factorlab/market/providers"
)

// DataSource supplies raw observations. *providers.ProviderManager implements it.
type DataSource interface {
	FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error)
	FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error)
}

// NewSource 根据配置组装数据源
func NewSource(cfg config.Config, log *zap.Logger) (*providers.ProviderManager, error) {
	pm := providers.NewProviderManager(logger.Named(log, "providers"))
	switch cfg.Source.Kind {
	case config.SourceOnline:
		opts := []providers.Option{
			providers.WithTimeout(cfg.Source.Timeout),
			providers.WithRateLimit(cfg.Source.RateLimit),
		}
		pm.AddPriceSource(providers.NewYahooProvider(opts...))
		pm.AddYieldSource(providers.NewFREDProvider(opts...))
	case config.SourceCSV:
		cp := providers.NewCSVProvider(cfg.Source.PricesCSV, cfg.Source.YieldsCSV)
		pm.AddPriceSource(cp)
		pm.AddYieldSource(cp)
	case config.SourceSynthetic:
		sp := providers.NewSyntheticProvider(providers.SyntheticOptions{
			Seed:    cfg.Source.Seed,
			Symbols: cfg.Tickers,
		})
		pm.AddPriceSource(sp)
		pm.AddYieldSource(sp)
	default:
		return nil, fail(StageConfig, ErrConfig, fmt.Errorf("unknown source kind %q", cfg.Source.Kind))
	}
	return pm, nil
}

// rawData is what acquisition hands to the cleaning stage.
type rawData struct {
	prices   []market.PricePoint
	yields   []market.YieldPoint
	duration time.Duration
}

// acquire fetches every ticker and then the risk-free series, one request at
// a time. Any failure aborts the run.
func acquire(ctx context.Context, src DataSource, cfg config.Config, log *zap.Logger) (*rawData, error) {
	began := time.Now()
	start, end := cfg.Start.Time, cfg.End.Time
	raw := &rawData{}

	for _, symbol := range cfg.Tickers {
		points, err := src.FetchPrices(ctx, symbol, start, end)
		if err != nil {
			return nil, fail(StageAcquire, ErrAcquisition, fmt.Errorf("prices for %s: %w", symbol, err))
		}
		raw.prices = append(raw.prices, points...)
		log.Debug("fetched prices", zap.String("symbol", symbol), zap.Int("points", len(points)))
	}

	yields, err := src.FetchYields(ctx, cfg.RiskFree.SeriesID, start, end)
	if err != nil {
		return nil, fail(StageAcquire, ErrAcquisition, fmt.Errorf("risk-free series %s: %w", cfg.RiskFree.SeriesID, err))
	}
	raw.yields = yields
	raw.duration = time.Since(began)
	log.Info("acquisition complete",
		zap.Int("tickers", len(cfg.Tickers)),
		zap.Int("price_points", len(raw.prices)),
		zap.Int("yield_points", len(yields)),
		zap.Duration("took", raw.duration))
	return raw, nil
}
