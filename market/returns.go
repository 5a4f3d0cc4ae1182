package market

import (
	"errors"
	"math"
	"time"
)

// ErrNoOverlap 收益率与无风险利率没有可对齐的日期
var ErrNoOverlap = errors.New("no overlapping dates between returns and risk-free series")

// PctChange computes simple period-over-period returns. A missing price is
// carried forward from the last observed one before differencing, so a gap
// month gets a zero return and the month after it the full move. Rows where
// some column has no usable prior price yet are dropped.
func PctChange(prices *Table) *Table {
	out := &Table{Columns: append([]string(nil), prices.Columns...)}
	if prices.Rows() == 0 {
		return out
	}
	last := append([]float64(nil), prices.Values[0]...)
	for i := 1; i < prices.Rows(); i++ {
		cur := prices.Values[i]
		row := make([]float64, len(cur))
		ok := true
		for j, v := range cur {
			prev := last[j]
			if !math.IsNaN(v) {
				last[j] = v
			}
			if math.IsNaN(prev) || prev <= 0 {
				ok = false
				continue
			}
			row[j] = last[j]/prev - 1
		}
		if !ok {
			continue
		}
		out.Dates = append(out.Dates, prices.Dates[i])
		out.Values = append(out.Values, row)
	}
	return out
}

// HoldingReturn converts an annualized yield in percentage points into the
// holding-period return of a tenorDays instrument: yield/100 * tenor/dayCount.
func HoldingReturn(yields *Series, tenorDays, dayCount int) *Series {
	factor := float64(tenorDays) / float64(dayCount)
	out := &Series{
		Name:   yields.Name,
		Dates:  append([]time.Time(nil), yields.Dates...),
		Values: make([]float64, len(yields.Values)),
	}
	for i, v := range yields.Values {
		out.Values[i] = v / 100 * factor
	}
	return out
}

// AlignForward reindexes s onto dates, carrying the last observation at or
// before each date. Dates preceding the first observation are NaN.
func AlignForward(s *Series, dates []time.Time) *Series {
	out := &Series{
		Name:   s.Name,
		Dates:  append([]time.Time(nil), dates...),
		Values: make([]float64, len(dates)),
	}
	k := -1
	last := math.NaN()
	for i, d := range dates {
		for k+1 < len(s.Dates) && !s.Dates[k+1].After(d) {
			k++
			if !math.IsNaN(s.Values[k]) {
				last = s.Values[k]
			}
		}
		out.Values[i] = last
	}
	return out
}

// Excess subtracts the risk-free holding return from every column of returns,
// row by row. Rows without a risk-free value are dropped; ErrNoOverlap is
// returned when none remain.
func Excess(returns *Table, riskFree *Series) (*Table, error) {
	aligned := AlignForward(riskFree, returns.Dates)
	out := &Table{Columns: append([]string(nil), returns.Columns...)}
	for i, row := range returns.Values {
		rf := aligned.Values[i]
		if math.IsNaN(rf) {
			continue
		}
		excess := make([]float64, len(row))
		for j, r := range row {
			excess[j] = r - rf
		}
		out.Dates = append(out.Dates, returns.Dates[i])
		out.Values = append(out.Values, excess)
	}
	if out.Rows() == 0 {
		return nil, ErrNoOverlap
	}
	return out, nil
}

// EqualWeight returns the cross-sectional mean of each row.
func EqualWeight(t *Table, name string) *Series {
	out := &Series{
		Name:   name,
		Dates:  append([]time.Time(nil), t.Dates...),
		Values: make([]float64, t.Rows()),
	}
	for i, row := range t.Values {
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		out.Values[i] = sum / float64(len(row))
	}
	return out
}
