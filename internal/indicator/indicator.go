// Package indicator provides streaming technical indicators over bar data.
//
// All indicators implement the Indicator interface, consuming bars one at a
// time and exposing a current float64 value. A value is NaN until the
// indicator's warm-up is satisfied, and may be NaN afterwards when inputs
// are NaN; comparisons against NaN are false, so undefined values propagate
// to false signals downstream. Driving an indicator bar-by-bar over a
// normalized series produces exactly the column a batch recomputation would,
// which is what lets the batch pipeline and the live engine share these
// types.
package indicator

import "signal-systemv1/internal/model"

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g. "SMA_20", "RSI_14").
	Name() string

	// Update feeds the next bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current value, NaN while undefined.
	Value() float64

	// Ready reports whether the warm-up window has been satisfied. A ready
	// indicator can still hold a NaN value (e.g. RSI with zero gains and
	// zero losses).
	Ready() bool

	// Peek computes what Value() would be if bar were appended next,
	// without mutating state. Used for previews from forming bars.
	Peek(bar model.Bar) float64
}
