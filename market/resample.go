package market

import (
	"math"
	"sort"
	"time"
)

// MonthEnd returns the last calendar day of t's month in UTC.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// PriceTable pivots price observations into a month-end table, one column per
// symbol in the given order. Each cell holds the last observation of that month;
// months where a symbol has no observation are NaN.
func PriceTable(points []PricePoint, symbols []string) (*Table, error) {
	index := make(map[string]int, len(symbols))
	for j, s := range symbols {
		index[s] = j
	}

	type cell struct {
		date  time.Time
		value float64
	}
	last := make(map[time.Time][]cell)
	for _, p := range points {
		j, ok := index[p.Symbol]
		if !ok || math.IsNaN(p.AdjClose) {
			continue
		}
		key := MonthEnd(p.Date)
		row, ok := last[key]
		if !ok {
			row = make([]cell, len(symbols))
			last[key] = row
		}
		if row[j].date.IsZero() || !p.Date.Before(row[j].date) {
			row[j] = cell{date: p.Date, value: p.AdjClose}
		}
	}

	dates := sortedKeys(last)
	values := make([][]float64, len(dates))
	for i, d := range dates {
		values[i] = make([]float64, len(symbols))
		for j, c := range last[d] {
			if c.date.IsZero() {
				values[i][j] = math.NaN()
			} else {
				values[i][j] = c.value
			}
		}
	}
	return NewTable(dates, symbols, values)
}

// YieldSeries resamples yield observations to month end, keeping the last
// non-missing value of each month and carrying the previous month forward
// when a month has none.
func YieldSeries(name string, points []YieldPoint) *Series {
	last := make(map[time.Time]YieldPoint)
	for _, p := range points {
		if math.IsNaN(p.Value) {
			continue
		}
		key := MonthEnd(p.Date)
		if prev, ok := last[key]; !ok || !p.Date.Before(prev.Date) {
			last[key] = p
		}
	}

	dates := sortedKeys(last)
	s := &Series{Name: name}
	if len(dates) == 0 {
		return s
	}

	// fill every month between the first and last observation
	for d := dates[0]; !d.After(dates[len(dates)-1]); d = MonthEnd(d.AddDate(0, 0, 1)) {
		v := math.NaN()
		if p, ok := last[d]; ok {
			v = p.Value
		} else if len(s.Values) > 0 {
			v = s.Values[len(s.Values)-1]
		}
		s.Dates = append(s.Dates, d)
		s.Values = append(s.Values, v)
	}
	return s
}

func sortedKeys[V any](m map[time.Time]V) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
