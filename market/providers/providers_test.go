package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factorlab/market"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"close":[185.6,184.2,181.9]}],"adjclose":[{"adjclose":[184.9,null,181.2]}]}}],"error":null}}`

func TestYahooFetchPrices(t *testing.T) {
	var path, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, query = r.URL.Path, r.URL.RawQuery
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, chartBody)
	}))
	defer srv.Close()

	yp := NewYahooProvider(WithBaseURL(srv.URL), WithRateLimit(100))
	points, err := yp.FetchPrices(context.Background(), "AAPL", day(2024, time.January, 1), day(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", path)
	assert.Contains(t, query, "includeAdjustedClose=true")
	require.Len(t, points, 2)
	assert.Equal(t, day(2024, time.January, 2), points[0].Date)
	assert.Equal(t, 184.9, points[0].AdjClose)
	assert.Equal(t, day(2024, time.January, 4), points[1].Date)
}

func TestYahooChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}))
	defer srv.Close()

	yp := NewYahooProvider(WithBaseURL(srv.URL))
	_, err := yp.FetchPrices(context.Background(), "ZZZZ", day(2024, 1, 1), day(2024, 2, 1))
	assert.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "delisted")
}

func TestYahooHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	yp := NewYahooProvider(WithBaseURL(srv.URL))
	_, err := yp.FetchPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 2, 1))
	assert.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), "429")
}

func TestFREDFetchYields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graph/fredgraph.csv", r.URL.Path)
		assert.Equal(t, "DGS3MO", r.URL.Query().Get("id"))
		fmt.Fprint(w, "observation_date,DGS3MO\n2024-01-01,.\n2024-01-02,5.46\n2024-01-03,5.48\n")
	}))
	defer srv.Close()

	fp := NewFREDProvider(WithBaseURL(srv.URL), WithTimeout(time.Second))
	points, err := fp.FetchYields(context.Background(), "DGS3MO", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)

	require.Len(t, points, 3)
	assert.True(t, math.IsNaN(points[0].Value))
	assert.Equal(t, 5.46, points[1].Value)
	assert.Equal(t, day(2024, 1, 3), points[2].Date)
}

func TestCSVSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prices := []market.PricePoint{
		{Symbol: "MSFT", Date: day(2024, 1, 31), AdjClose: 397.58},
		{Symbol: "AAPL", Date: day(2024, 2, 29), AdjClose: 180.75},
		{Symbol: "AAPL", Date: day(2024, 1, 31), AdjClose: 184.40123456789},
	}
	yields := []market.YieldPoint{
		{Date: day(2024, 1, 1), Value: math.NaN()},
		{Date: day(2024, 1, 2), Value: 5.46},
	}

	var pb, yb bytes.Buffer
	require.NoError(t, WritePriceSnapshot(&pb, prices))
	require.NoError(t, WriteYieldSnapshot(&yb, "DGS3MO", yields))
	pricesPath := filepath.Join(dir, "prices.csv")
	yieldsPath := filepath.Join(dir, "yields.csv")
	require.NoError(t, os.WriteFile(pricesPath, pb.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(yieldsPath, yb.Bytes(), 0o644))

	cp := NewCSVProvider(pricesPath, yieldsPath)
	got, err := cp.FetchPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, day(2024, 1, 31), got[0].Date)
	assert.Equal(t, 184.40123456789, got[0].AdjClose)

	ys, err := cp.FetchYields(context.Background(), "DGS3MO", day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, ys, 2)
	assert.True(t, math.IsNaN(ys[0].Value))

	_, err = cp.FetchPrices(context.Background(), "IBM", day(2024, 1, 1), day(2024, 12, 31))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCSVMissingFile(t *testing.T) {
	cp := NewCSVProvider(filepath.Join(t.TempDir(), "absent.csv"), "")
	_, err := cp.FetchPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 12, 31))
	assert.Error(t, err)
}

func TestSyntheticIsDeterministic(t *testing.T) {
	opts := SyntheticOptions{Seed: 42, Symbols: []string{"A", "B"}}
	a, err := NewSyntheticProvider(opts).FetchPrices(context.Background(), "A", day(2015, 1, 1), day(2016, 12, 31))
	require.NoError(t, err)
	b, err := NewSyntheticProvider(opts).FetchPrices(context.Background(), "A", day(2015, 1, 1), day(2016, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 24)
	assert.Equal(t, day(2015, 1, 31), a[0].Date)
}

func TestSyntheticFlatSymbol(t *testing.T) {
	sp := NewSyntheticProvider(SyntheticOptions{Seed: 1, Flat: []string{"FLAT"}})
	points, err := sp.FetchPrices(context.Background(), "FLAT", day(2020, 1, 1), day(2020, 12, 31))
	require.NoError(t, err)
	for _, p := range points {
		assert.Equal(t, points[0].AdjClose, p.AdjClose)
	}
}

type failingSource struct {
	calls atomic.Int32
}

func (f *failingSource) Name() string { return "down" }

func (f *failingSource) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func (f *failingSource) FetchYields(ctx context.Context, id string, start, end time.Time) ([]market.YieldPoint, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestManagerFallbackAndMemo(t *testing.T) {
	down := &failingSource{}
	pm := NewProviderManager(nil)
	pm.AddPriceSource(down)
	pm.AddPriceSource(NewSyntheticProvider(SyntheticOptions{Seed: 3}))

	start, end := day(2020, 1, 1), day(2020, 6, 30)
	first, err := pm.FetchPrices(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	second, err := pm.FetchPrices(context.Background(), "AAPL", start, end)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), down.calls.Load())

	names, _ := pm.Sources()
	assert.Equal(t, []string{"down", "synthetic"}, names)
}

func TestManagerAllFailed(t *testing.T) {
	pm := NewProviderManager(nil)
	pm.AddYieldSource(&failingSource{})
	_, err := pm.FetchYields(context.Background(), "DGS3MO", day(2020, 1, 1), day(2020, 6, 30))

	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestManagerWithoutSources(t *testing.T) {
	_, err := NewProviderManager(nil).FetchPrices(context.Background(), "AAPL", day(2020, 1, 1), day(2020, 6, 30))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

type countingSource struct {
	*SyntheticProvider
	prices atomic.Int32
	yields atomic.Int32
}

func (c *countingSource) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	c.prices.Add(1)
	return c.SyntheticProvider.FetchPrices(ctx, symbol, start, end)
}

func (c *countingSource) FetchYields(ctx context.Context, id string, start, end time.Time) ([]market.YieldPoint, error) {
	c.yields.Add(1)
	return c.SyntheticProvider.FetchYields(ctx, id, start, end)
}

func TestSaveSnapshotReusesFetchedSeries(t *testing.T) {
	symbols := []string{"AAPL", "KO"}
	src := &countingSource{SyntheticProvider: NewSyntheticProvider(SyntheticOptions{Seed: 7, Symbols: symbols})}
	pm := NewProviderManager(nil)
	pm.AddPriceSource(src)
	pm.AddYieldSource(src)

	req := SnapshotRequest{Symbols: symbols, SeriesID: "DGS3MO", Start: day(2020, 1, 1), End: day(2020, 12, 31)}
	ctx := context.Background()
	for _, s := range symbols {
		_, err := pm.FetchPrices(ctx, s, req.Start, req.End)
		require.NoError(t, err)
	}
	_, err := pm.FetchYields(ctx, req.SeriesID, req.Start, req.End)
	require.NoError(t, err)

	dir := t.TempDir()
	pricesPath := filepath.Join(dir, "snap", "prices.csv")
	yieldsPath := filepath.Join(dir, "snap", "yields.csv")
	nPrices, nYields, err := pm.SaveSnapshot(ctx, req, pricesPath, yieldsPath)
	require.NoError(t, err)
	assert.Equal(t, 24, nPrices)
	assert.Equal(t, 12, nYields)

	assert.Equal(t, int32(2), src.prices.Load())
	assert.Equal(t, int32(1), src.yields.Load())

	cp := NewCSVProvider(pricesPath, yieldsPath)
	want, err := src.SyntheticProvider.FetchPrices(ctx, "KO", req.Start, req.End)
	require.NoError(t, err)
	got, err := cp.FetchPrices(ctx, "KO", req.Start, req.End)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestHTTPClientOptionsKeepCallerClient(t *testing.T) {
	var hits atomic.Int32
	caller := &http.Client{
		Timeout: time.Minute,
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			hits.Add(1)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(chartBody)),
				Header:     make(http.Header),
				Request:    r,
			}, nil
		}),
	}

	orders := map[string][]Option{
		"client then timeout": {WithHTTPClient(caller), WithTimeout(3 * time.Second)},
		"timeout then client": {WithTimeout(3 * time.Second), WithHTTPClient(caller)},
	}
	for name, opts := range orders {
		t.Run(name, func(t *testing.T) {
			yp := NewYahooProvider(append(opts, WithRateLimit(100))...)
			assert.Equal(t, 3*time.Second, yp.client.Timeout)
			assert.NotSame(t, caller, yp.client)

			_, err := yp.FetchPrices(context.Background(), "AAPL", day(2024, 1, 1), day(2024, 1, 31))
			require.NoError(t, err)
		})
	}
	assert.Equal(t, time.Minute, caller.Timeout)
	assert.Equal(t, int32(2), hits.Load())

	assert.Equal(t, DefaultTimeout, NewFREDProvider().client.Timeout)
	assert.NotSame(t, http.DefaultClient, NewFREDProvider().client)
}
