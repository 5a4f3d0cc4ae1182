package providers

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"factorlab/market"
)

// Snapshot column layouts.
var (
	priceColumns = []string{"date", "symbol", "adj_close"}
	yieldColumns = []string{"date", "series", "value"}
)

// CSVProvider serves prices and yields from a local snapshot written by
// WritePriceSnapshot and WriteYieldSnapshot.
type CSVProvider struct {
	pricesPath string
	yieldsPath string

	once   sync.Once
	err    error
	prices map[string][]market.PricePoint
	yields map[string][]market.YieldPoint
}

func NewCSVProvider(pricesPath, yieldsPath string) *CSVProvider {
	return &CSVProvider{pricesPath: pricesPath, yieldsPath: yieldsPath}
}

func (cp *CSVProvider) Name() string {
	return "csv"
}

func (cp *CSVProvider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	if err := cp.load(); err != nil {
		return nil, err
	}
	var out []market.PricePoint
	for _, p := range cp.prices[symbol] {
		if inRange(p.Date, start, end) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, newError(ErrNoData, cp.Name(), symbol, nil)
	}
	return out, nil
}

func (cp *CSVProvider) FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error) {
	if err := cp.load(); err != nil {
		return nil, err
	}
	var out []market.YieldPoint
	for _, p := range cp.yields[seriesID] {
		if inRange(p.Date, start, end) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, newError(ErrNoData, cp.Name(), seriesID, nil)
	}
	return out, nil
}

func (cp *CSVProvider) load() error {
	cp.once.Do(func() {
		cp.prices = make(map[string][]market.PricePoint)
		cp.yields = make(map[string][]market.YieldPoint)

		if cp.pricesPath != "" {
			cp.err = readSnapshot(cp.pricesPath, priceColumns, func(d time.Time, key string, v float64) {
				cp.prices[key] = append(cp.prices[key], market.PricePoint{Symbol: key, Date: d, AdjClose: v})
			})
			if cp.err != nil {
				return
			}
		}
		if cp.yieldsPath != "" {
			cp.err = readSnapshot(cp.yieldsPath, yieldColumns, func(d time.Time, key string, v float64) {
				cp.yields[key] = append(cp.yields[key], market.YieldPoint{Date: d, Value: v})
			})
		}
	})
	return cp.err
}

func readSnapshot(path string, columns []string, emit func(time.Time, string, float64)) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return newError(ErrProviderNotFound, "csv", "open snapshot", err)
	}
	df := readStrings(body)
	if df.Err != nil {
		return newError(ErrBadResponse, "csv", path, df.Err)
	}
	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, c := range columns {
		if !have[c] {
			return newError(ErrBadResponse, "csv", fmt.Sprintf("%s: missing column %q", path, c), nil)
		}
	}

	dates := df.Col(columns[0]).Records()
	keys := df.Col(columns[1]).Records()
	values := df.Col(columns[2]).Float()
	for i := range dates {
		d, err := time.Parse(dateLayout, strings.TrimSpace(dates[i]))
		if err != nil {
			return newError(ErrBadResponse, "csv", fmt.Sprintf("%s: row %d", path, i+1), err)
		}
		emit(d, strings.TrimSpace(keys[i]), values[i])
	}
	return nil
}

// WritePriceSnapshot writes prices in the layout CSVProvider reads, sorted by
// symbol then date.
func WritePriceSnapshot(w io.Writer, points []market.PricePoint) error {
	sorted := append([]market.PricePoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})
	dates := make([]string, len(sorted))
	symbols := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, p := range sorted {
		dates[i] = p.Date.Format(dateLayout)
		symbols[i] = p.Symbol
		values[i] = formatFloat(p.AdjClose)
	}
	return writeFrame(w, priceColumns, dates, symbols, values)
}

// WriteYieldSnapshot writes one yield series in the layout CSVProvider reads.
func WriteYieldSnapshot(w io.Writer, seriesID string, points []market.YieldPoint) error {
	dates := make([]string, len(points))
	ids := make([]string, len(points))
	values := make([]string, len(points))
	for i, p := range points {
		dates[i] = p.Date.Format(dateLayout)
		ids[i] = seriesID
		values[i] = formatFloat(p.Value)
	}
	return writeFrame(w, yieldColumns, dates, ids, values)
}

func writeFrame(w io.Writer, names []string, cols ...[]string) error {
	ss := make([]series.Series, len(cols))
	for i, c := range cols {
		ss[i] = series.New(c, series.String, names[i])
	}
	df := dataframe.New(ss...)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// formatFloat keeps full precision; gota's own float formatting rounds to six decimals.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
