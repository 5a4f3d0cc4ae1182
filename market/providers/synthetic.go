package providers

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"factorlab/market"
)

// SyntheticOptions shapes the generated universe.
type SyntheticOptions struct {
	Seed int64
	// Symbols fixes group membership by position; other symbols are hashed.
	Symbols []string
	// Groups is the number of sector factors on top of the common factor.
	Groups int
	// Independent drops every shared factor so columns are uncorrelated.
	Independent bool
	// Flat lists symbols whose price never moves.
	Flat []string
}

// SyntheticProvider generates deterministic month-end prices from a common
// factor plus sector factors, and a smooth three-month yield. Used offline and
// in tests.
type SyntheticProvider struct {
	opts  SyntheticOptions
	index map[string]int
	flat  map[string]bool
}

func NewSyntheticProvider(opts SyntheticOptions) *SyntheticProvider {
	if opts.Groups <= 0 {
		opts.Groups = 3
	}
	sp := &SyntheticProvider{
		opts:  opts,
		index: make(map[string]int, len(opts.Symbols)),
		flat:  make(map[string]bool, len(opts.Flat)),
	}
	for i, s := range opts.Symbols {
		sp.index[s] = i
	}
	for _, s := range opts.Flat {
		sp.flat[s] = true
	}
	return sp
}

func (sp *SyntheticProvider) Name() string {
	return "synthetic"
}

func months(start, end time.Time) []time.Time {
	var out []time.Time
	for d := market.MonthEnd(start); !d.After(end); d = market.MonthEnd(d.AddDate(0, 0, 1)) {
		out = append(out, d)
	}
	return out
}

func (sp *SyntheticProvider) group(symbol string) int {
	if i, ok := sp.index[symbol]; ok {
		return i % sp.opts.Groups
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(sp.opts.Groups))
}

func symbolSeed(seed int64, symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return seed ^ int64(h.Sum64()>>1)
}

func (sp *SyntheticProvider) FetchPrices(ctx context.Context, symbol string, start, end time.Time) ([]market.PricePoint, error) {
	dates := months(start, end)
	if len(dates) == 0 {
		return nil, newError(ErrNoData, sp.Name(), symbol, nil)
	}

	// shared factors depend only on the seed, so every symbol sees the same draws
	shared := rand.New(rand.NewSource(sp.opts.Seed))
	own := rand.New(rand.NewSource(symbolSeed(sp.opts.Seed, symbol)))
	g := sp.group(symbol)

	price := 50 + 100*own.Float64()
	points := make([]market.PricePoint, 0, len(dates))
	for _, d := range dates {
		common := shared.NormFloat64()
		sectors := make([]float64, sp.opts.Groups)
		for i := range sectors {
			sectors[i] = shared.NormFloat64()
		}
		noise := own.NormFloat64()

		if !sp.flat[symbol] {
			var r float64
			if sp.opts.Independent {
				r = 0.005 + 0.04*noise
			} else {
				r = 0.005 + 0.03*common + 0.03*sectors[g] + 0.025*noise
			}
			price *= 1 + r
		}
		points = append(points, market.PricePoint{Symbol: symbol, Date: d, AdjClose: price})
	}
	return points, nil
}

// FetchYields returns a smooth positive path for any series id.
func (sp *SyntheticProvider) FetchYields(ctx context.Context, seriesID string, start, end time.Time) ([]market.YieldPoint, error) {
	dates := months(start, end)
	if len(dates) == 0 {
		return nil, newError(ErrNoData, sp.Name(), seriesID, nil)
	}
	points := make([]market.YieldPoint, len(dates))
	for i, d := range dates {
		points[i] = market.YieldPoint{Date: d, Value: math.Max(0.05, 1.5+1.2*math.Sin(float64(i)/9))}
	}
	return points, nil
}
