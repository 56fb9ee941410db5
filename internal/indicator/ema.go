package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// EMA is an exponentially weighted moving average with smoothing
// α = 2/(span+1), seeded with the first value:
//
//	avg_0 = x_0
//	avg_t = α·x_t + (1−α)·avg_{t−1}
//
// Defined from the first bar on. NaN inputs leave the average unchanged.
// O(1) per update.
type EMA struct {
	span   int
	alpha  float64
	value  float64
	seeded bool
	count  int
}

// NewEMA creates an EMA with the given span.
func NewEMA(span int) *EMA {
	return &EMA{
		span:  span,
		alpha: 2.0 / float64(span+1),
		value: math.NaN(),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.span) }

func (e *EMA) Update(bar model.Bar) { e.UpdateValue(bar.Close) }

// UpdateValue feeds a raw value. Derived series drive this directly: the
// MACD signal line smooths MACD values, the RSI smooths clipped deltas.
func (e *EMA) UpdateValue(x float64) {
	e.count++
	if math.IsNaN(x) {
		return
	}
	if !e.seeded {
		e.value = x
		e.seeded = true
		return
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
}

func (e *EMA) Value() float64 { return e.value }
func (e *EMA) Ready() bool    { return e.seeded }

func (e *EMA) Peek(bar model.Bar) float64 { return e.PeekValue(bar.Close) }

// PeekValue computes what Value() would be with x appended, without mutating
// state.
func (e *EMA) PeekValue(x float64) float64 {
	if math.IsNaN(x) {
		return e.value
	}
	if !e.seeded {
		return x
	}
	return e.alpha*x + (1-e.alpha)*e.value
}

// Snapshot serializes the EMA state for checkpoint persistence.
func (e *EMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "EMA",
		Period:  e.span,
		Count:   e.count,
		Current: JSONFloat(e.value),
		Seeded:  e.seeded,
	}
}

// RestoreFromSnapshot restores EMA state from a checkpoint taken with the
// same span.
func (e *EMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "EMA" || snap.Period != e.span {
		return snapMismatch(e.Name(), snap)
	}
	e.count = snap.Count
	e.value = float64(snap.Current)
	e.seeded = snap.Seeded
	return nil
}
