package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"factorlab/market"
)

const memoSize = 256

// ProviderManager 数据源管理器：按添加顺序依次尝试，并在进程内缓存结果
type ProviderManager struct {
	prices []PriceSource
	yields []YieldSource
	memo   *lru.Cache[string, any]
	log    *zap.Logger
	mu     sync.RWMutex
}

// NewProviderManager 创建数据源管理器
func NewProviderManager(log *zap.Logger) *ProviderManager {
	memo, _ := lru.New[string, any](memoSize)
	if log == nil {
		log = zap.NewNop()
	}
	return &ProviderManager{memo: memo, log: log}
}

// AddPriceSource appends a price source. The first one added is the primary.
func (pm *ProviderManager) AddPriceSource(s PriceSource) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.prices = append(pm.prices, s)
}

// AddYieldSource appends a yield source. The first one added is the primary.
func (pm *ProviderManager) AddYieldSource(s YieldSource) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.yields = append(pm.yields, s)
}

// Sources lists the configured source names, prices first.
func (pm *ProviderManager) Sources() (prices, yields []string) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for _, s := range pm.prices {
		prices = append(prices, s.Name())
	}
	for _, s := range pm.yields {
		yields = append(yields, s.Name())
	}
	return prices, yields
}

func memoKey(kind, id string, start, end time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", kind, id, start.Format(dateLayout), end.Format(dateLayout))
}

// FetchPrices 获取价格（主数据源失败时切换到备用数据源）
func (pm *ProviderManager) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	key := memoKey("prices", symbol, start, end)
	if v, ok := pm.memo.Get(key); ok {
		return v.([]market.PricePoint), nil
	}

	pm.mu.RLock()
	sources := append([]PriceSource(nil), pm.prices...)
	pm.mu.RUnlock()
	if len(sources) == 0 {
		return nil, ErrProviderNotFound
	}

	var lastErr error
	for i, s := range sources {
		points, err := s.FetchPrices(ctx, symbol, start, end)
		if err == nil && len(points) > 0 {
			if i > 0 {
				pm.log.Info("using fallback price source", zap.String("source", s.Name()), zap.String("symbol", symbol))
			}
			pm.memo.Add(key, points)
			return points, nil
		}
		if err == nil {
			err = newError(ErrNoData, s.Name(), symbol, nil)
		}
		lastErr = err
		pm.log.Warn("price source failed", zap.String("source", s.Name()), zap.String("symbol", symbol), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, newError(ErrAllProvidersFailed, "", "prices for "+symbol, lastErr)
}

// FetchYields 获取无风险利率序列
func (pm *ProviderManager) FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error) {
	key := memoKey("yields", seriesID, start, end)
	if v, ok := pm.memo.Get(key); ok {
		return v.([]market.YieldPoint), nil
	}

	pm.mu.RLock()
	sources := append([]YieldSource(nil), pm.yields...)
	pm.mu.RUnlock()
	if len(sources) == 0 {
		return nil, ErrProviderNotFound
	}

	var lastErr error
	for i, s := range sources {
		points, err := s.FetchYields(ctx, seriesID, start, end)
		if err == nil && len(points) > 0 {
			if i > 0 {
				pm.log.Info("using fallback yield source", zap.String("source", s.Name()), zap.String("series", seriesID))
			}
			pm.memo.Add(key, points)
			return points, nil
		}
		if err == nil {
			err = newError(ErrNoData, s.Name(), seriesID, nil)
		}
		lastErr = err
		pm.log.Warn("yield source failed", zap.String("source", s.Name()), zap.String("series", seriesID), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, newError(ErrAllProvidersFailed, "", "yields for "+seriesID, lastErr)
}
