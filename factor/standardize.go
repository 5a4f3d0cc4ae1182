package factor

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"factorlab/market"
)

// ColumnStats 标准化使用的样本统计量
type ColumnStats struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Standardize rescales every column to sample mean 0 and sample standard
// deviation 1 (n-1 denominator), using only the statistics of t itself.
// Labels and ordering are preserved. A column with no spread is rejected with
// a *DegenerateInputError naming it.
func Standardize(t *market.Table) (*market.Table, []ColumnStats, error) {
	if t.Rows() < 2 {
		return nil, nil, &DegenerateInputError{Column: "*", Reason: "fewer than two observations"}
	}

	stats := make([]ColumnStats, t.Cols())
	for j, name := range t.Columns {
		col := t.Column(j)
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, &DegenerateInputError{Column: name, Reason: "non-finite value"}
			}
		}
		mean, std := stat.MeanStdDev(col, nil)
		if !(std > 1e-12*math.Max(1, math.Abs(mean))) {
			return nil, nil, &DegenerateInputError{Column: name, Reason: "zero variance"}
		}
		stats[j] = ColumnStats{Column: name, Mean: mean, StdDev: std}
	}

	out := t.Clone()
	for _, row := range out.Values {
		for j, v := range row {
			row[j] = (v - stats[j].Mean) / stats[j].StdDev
		}
	}
	return out, stats, nil
}
