// Package frame holds the tabular output of a pipeline run: the normalized
// bar series extended with named indicator columns and, after rule
// evaluation, boolean signal columns. Stages hand each other new frames and
// never mutate a predecessor's data, so a frame can be read concurrently
// once built.
package frame

import (
	"fmt"
	"math"

	"signal-systemv1/internal/model"
)

type column struct {
	values []float64
	fill   bool // participates in forward-fill
}

// Frame is a bar series with row-aligned float64 and bool columns. Column
// order is computation order and is preserved through every stage.
type Frame struct {
	bars  []model.Bar
	names []string
	cols  map[string]*column

	boolNames []string
	bools     map[string][]bool
}

// New creates a frame over a normalized series.
func New(bars []model.Bar) *Frame {
	return &Frame{
		bars:  bars,
		cols:  make(map[string]*column, 8),
		bools: make(map[string][]bool, 4),
	}
}

// Rows returns the row count.
func (f *Frame) Rows() int { return len(f.bars) }

// Bars returns the underlying series. Read-only.
func (f *Frame) Bars() []model.Bar { return f.bars }

// AddColumn appends a float column. Values must be row-aligned; fill marks
// the column for forward-fill.
func (f *Frame) AddColumn(name string, fill bool, values []float64) error {
	if len(values) != len(f.bars) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.bars))
	}
	if _, dup := f.cols[name]; dup {
		return fmt.Errorf("column %s: already present", name)
	}
	f.names = append(f.names, name)
	f.cols[name] = &column{values: values, fill: fill}
	return nil
}

// AddBool appends a bool column.
func (f *Frame) AddBool(name string, values []bool) error {
	if len(values) != len(f.bars) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.bars))
	}
	if _, dup := f.bools[name]; dup {
		return fmt.Errorf("column %s: already present", name)
	}
	f.boolNames = append(f.boolNames, name)
	f.bools[name] = values
	return nil
}

// Columns returns the float column names in computation order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// BoolColumns returns the bool column names in computation order.
func (f *Frame) BoolColumns() []string {
	out := make([]string, len(f.boolNames))
	copy(out, f.boolNames)
	return out
}

// Column returns a float column by name. Read-only.
func (f *Frame) Column(name string) ([]float64, bool) {
	c, ok := f.cols[name]
	if !ok {
		return nil, false
	}
	return c.values, true
}

// Bool returns a bool column by name. Read-only.
func (f *Frame) Bool(name string) ([]bool, bool) {
	b, ok := f.bools[name]
	return b, ok
}

// Value returns the cell at (row, name), NaN for unknown columns.
func (f *Frame) Value(row int, name string) float64 {
	c, ok := f.cols[name]
	if !ok {
		return math.NaN()
	}
	return c.values[row]
}

// Row returns a view of one row.
func (f *Frame) Row(i int) Row { return Row{f: f, i: i} }

// Row is a single-row view used by pointwise rule evaluation.
type Row struct {
	f *Frame
	i int
}

// Index returns the row's position in the frame.
func (r Row) Index() int { return r.i }

// Time returns the row's bar time (epoch seconds).
func (r Row) Time() int64 { return r.f.bars[r.i].Time }

// Close returns the row's close price.
func (r Row) Close() float64 { return r.f.bars[r.i].Close }

// Bar returns the row's bar.
func (r Row) Bar() model.Bar { return r.f.bars[r.i] }

// Value returns the row's cell in the named column, NaN when the column is
// unknown or the cell undefined.
func (r Row) Value(name string) float64 { return r.f.Value(r.i, name) }

// ForwardFill returns a new frame with every fill-flagged column filled
// left-to-right: an undefined cell takes the nearest prior defined value,
// leading undefined cells stay NaN. Unfilled columns and bars are shared
// with the receiver. Idempotent.
func (f *Frame) ForwardFill() *Frame {
	out := &Frame{
		bars:      f.bars,
		names:     append([]string(nil), f.names...),
		cols:      make(map[string]*column, len(f.cols)),
		boolNames: append([]string(nil), f.boolNames...),
		bools:     make(map[string][]bool, len(f.bools)),
	}
	for name, c := range f.cols {
		if !c.fill {
			out.cols[name] = c
			continue
		}
		filled := make([]float64, len(c.values))
		last := math.NaN()
		for i, v := range c.values {
			if !math.IsNaN(v) {
				last = v
			}
			filled[i] = last
		}
		out.cols[name] = &column{values: filled, fill: true}
	}
	for name, b := range f.bools {
		out.bools[name] = b
	}
	return out
}
