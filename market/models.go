package market

import (
	"fmt"
	"math"
	"time"
)

// PricePoint is one adjusted close observation.
type PricePoint struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	AdjClose float64   `json:"adj_close"`
}

// YieldPoint is one observation of an annualized yield in percentage points.
// Missing observations carry NaN.
type YieldPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Table is a date-indexed table with one float column per label.
// Missing cells hold NaN. Tables are treated as immutable: every
// transformation returns a new Table.
type Table struct {
	Dates   []time.Time `json:"dates"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // [row][column]
}

// Series is a single date-indexed column.
type Series struct {
	Name   string      `json:"name"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// NewTable validates the shape and copies its inputs.
func NewTable(dates []time.Time, columns []string, values [][]float64) (*Table, error) {
	if len(dates) != len(values) {
		return nil, fmt.Errorf("table has %d dates but %d rows", len(dates), len(values))
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, fmt.Errorf("duplicate column %s", c)
		}
		seen[c] = true
	}
	for i, row := range values {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if i > 0 && !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("dates not strictly increasing at row %d", i)
		}
	}

	t := &Table{
		Dates:   append([]time.Time(nil), dates...),
		Columns: append([]string(nil), columns...),
		Values:  make([][]float64, len(values)),
	}
	for i, row := range values {
		t.Values[i] = append([]float64(nil), row...)
	}
	return t, nil
}

// Rows returns the number of dates.
func (t *Table) Rows() int {
	return len(t.Dates)
}

// Cols returns the number of columns.
func (t *Table) Cols() int {
	return len(t.Columns)
}

// Column returns a copy of column j.
func (t *Table) Column(j int) []float64 {
	out := make([]float64, len(t.Values))
	for i, row := range t.Values {
		out[i] = row[j]
	}
	return out
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	c := &Table{
		Dates:   append([]time.Time(nil), t.Dates...),
		Columns: append([]string(nil), t.Columns...),
		Values:  make([][]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		c.Values[i] = append([]float64(nil), row...)
	}
	return c
}

// Flatten returns the values in row-major order, the layout gonum's mat.NewDense expects.
func (t *Table) Flatten() []float64 {
	out := make([]float64, 0, t.Rows()*t.Cols())
	for _, row := range t.Values {
		out = append(out, row...)
	}
	return out
}

// HasMissing reports whether any cell is NaN.
func (t *Table) HasMissing() bool {
	for _, row := range t.Values {
		for _, v := range row {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.Dates)
}
