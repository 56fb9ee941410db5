// Package strategy provides the signal rules evaluated over indicator
// columns.
//
// A Rule is pointwise: it looks at one row's close and indicator values and
// decides the four signal booleans for that row. NaN indicator values make
// every comparison false, so undefined cells can never fire a signal. The
// batch pipeline evaluates a rule over every frame row; the live service
// evaluates the same rule against the engine's current values per closed bar.
// Both paths see identical decisions for identical inputs.
package strategy

import (
	"fmt"
	"math"
)

// Signal column names, in evaluation order.
const (
	ColLongEntry  = "Long_Entry"
	ColShortEntry = "Short_Entry"
	ColLongExit   = "Long_Exit"
	ColShortExit  = "Short_Exit"
)

// Registered rule names.
const (
	RuleMeanReversion = "mean_reversion"
	RuleTrendMomentum = "trend_momentum"
)

// View is one row's worth of inputs to a rule.
type View interface {
	// Close returns the row's close price.
	Close() float64

	// Value returns the row's value in the named indicator column, NaN when
	// undefined or unknown.
	Value(name string) float64
}

// Decision holds the four signal booleans for one row.
type Decision struct {
	LongEntry  bool
	ShortEntry bool
	LongExit   bool
	ShortExit  bool
}

// Any reports whether any signal fired.
func (d Decision) Any() bool {
	return d.LongEntry || d.ShortEntry || d.LongExit || d.ShortExit
}

// Targets names the columns the outcome tally compares the close against.
type Targets struct {
	Long  string // long entries win when close ≥ this column
	Short string // short entries win when close ≤ this column
}

// Rule decides the signal booleans for a row of indicator values.
type Rule interface {
	// Name returns the registered rule name.
	Name() string

	// Set returns the indicator set the rule reads.
	Set() string

	// Evaluate computes the row's decision.
	Evaluate(v View) Decision

	// Targets returns the outcome target columns.
	Targets() Targets
}

// Params carries the rule thresholds. Zero fields take the defaults.
type Params struct {
	Oversold   float64 // RSI long-entry threshold
	Overbought float64 // RSI short-entry threshold
}

// DefaultParams returns the standard thresholds: oversold 30, overbought 70.
func DefaultParams() Params {
	return Params{Oversold: 30, Overbought: 70}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Oversold <= 0 {
		p.Oversold = d.Oversold
	}
	if p.Overbought <= 0 {
		p.Overbought = d.Overbought
	}
	return p
}

// New builds a registered rule by name.
func New(name string, p Params) (Rule, error) {
	p = p.withDefaults()
	switch name {
	case RuleMeanReversion:
		return NewMeanReversion(p), nil
	case RuleTrendMomentum:
		return NewTrendMomentum(p), nil
	}
	return nil, fmt.Errorf("unknown rule %q", name)
}

// Names lists the registered rule names.
func Names() []string {
	return []string{RuleMeanReversion, RuleTrendMomentum}
}

// SignalColumns lists the bool column names a rule evaluation adds to a
// frame, in order.
func SignalColumns() []string {
	return []string{ColLongEntry, ColShortEntry, ColLongExit, ColShortExit}
}

// Point is a View over a single bar's streaming values, built by the live
// path from an indicator set's current columns.
type Point struct {
	close  float64
	values map[string]float64
}

// NewPoint builds a Point from parallel column-name and value slices.
func NewPoint(close float64, names []string, vals []float64) Point {
	m := make(map[string]float64, len(names))
	for i, n := range names {
		if i < len(vals) {
			m[n] = vals[i]
		}
	}
	return Point{close: close, values: m}
}

// Close returns the bar's close price.
func (p Point) Close() float64 { return p.close }

// Value returns the named column's value, NaN when absent.
func (p Point) Value(name string) float64 {
	v, ok := p.values[name]
	if !ok {
		return math.NaN()
	}
	return v
}
