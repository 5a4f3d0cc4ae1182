package providers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"factorlab/market"
)

// SnapshotRequest names the series a snapshot covers.
type SnapshotRequest struct {
	Symbols  []string
	SeriesID string
	Start    time.Time
	End      time.Time
}

// Snapshot 按请求获取全部价格与利率。同一进程内已获取过的序列直接取自缓存，
// 因此分析之后保存快照不会再次访问网络。
func (pm *ProviderManager) Snapshot(ctx context.Context, req SnapshotRequest) ([]market.PricePoint, []market.YieldPoint, error) {
	var prices []market.PricePoint
	for _, symbol := range req.Symbols {
		points, err := pm.FetchPrices(ctx, symbol, req.Start, req.End)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", symbol, err)
		}
		prices = append(prices, points...)
	}
	yields, err := pm.FetchYields(ctx, req.SeriesID, req.Start, req.End)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", req.SeriesID, err)
	}
	pm.log.Info("snapshot collected",
		zap.Int("symbols", len(req.Symbols)),
		zap.Int("price_points", len(prices)),
		zap.Int("yield_points", len(yields)))
	return prices, yields, nil
}

// SaveSnapshot fetches req and writes the two files the csv source reads.
func (pm *ProviderManager) SaveSnapshot(ctx context.Context, req SnapshotRequest, pricesPath, yieldsPath string) (int, int, error) {
	prices, yields, err := pm.Snapshot(ctx, req)
	if err != nil {
		return 0, 0, err
	}
	if err := writeFile(pricesPath, func(w io.Writer) error {
		return WritePriceSnapshot(w, prices)
	}); err != nil {
		return 0, 0, fmt.Errorf("write prices: %w", err)
	}
	if err := writeFile(yieldsPath, func(w io.Writer) error {
		return WriteYieldSnapshot(w, req.SeriesID, yields)
	}); err != nil {
		return 0, 0, fmt.Errorf("write yields: %w", err)
	}
	return len(prices), len(yields), nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
