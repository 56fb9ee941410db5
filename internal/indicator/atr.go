package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// ATR is the simple moving average of the true range:
//
//	TR_t = max(high−low, |high−prevClose|, |low−prevClose|)
//
// Candidates involving a missing or NaN previous close are skipped, so
// TR_0 = high_0 − low_0. Undefined until period true ranges have been seen.
type ATR struct {
	period    int
	sma       *SMA
	prevClose float64
	count     int
}

// NewATR creates an ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{
		period:    period,
		sma:       NewSMA(period),
		prevClose: math.NaN(),
	}
}

func (a *ATR) Name() string { return "ATR_" + strconv.Itoa(a.period) }

func (a *ATR) Update(bar model.Bar) {
	a.sma.UpdateValue(trueRange(bar.High, bar.Low, a.prevClose))
	a.prevClose = bar.Close
	a.count++
}

func (a *ATR) Value() float64 { return a.sma.Value() }
func (a *ATR) Ready() bool    { return a.sma.Ready() }

// Peek computes what ATR would be with bar appended, without mutating state.
func (a *ATR) Peek(bar model.Bar) float64 {
	return a.sma.PeekValue(trueRange(bar.High, bar.Low, a.prevClose))
}

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:      "ATR",
		Period:    a.period,
		Count:     a.count,
		PrevClose: JSONFloat(a.prevClose),
		Children:  []IndicatorSnapshot{a.sma.Snapshot()},
	}
}

// RestoreFromSnapshot restores ATR state from a checkpoint taken with the
// same period. The nested SMA is verified before anything is mutated.
func (a *ATR) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "ATR" || snap.Period != a.period || len(snap.Children) != 1 {
		return snapMismatch(a.Name(), snap)
	}
	if c := snap.Children[0]; c.Type != "SMA" || c.Period != a.period {
		return snapMismatch(a.Name(), snap)
	}
	if err := a.sma.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	a.count = snap.Count
	a.prevClose = float64(snap.PrevClose)
	return nil
}

// trueRange is the skip-NaN maximum of the three range candidates. With no
// usable candidate at all it is NaN.
func trueRange(high, low, prevClose float64) float64 {
	tr := math.NaN()
	for _, c := range [3]float64{
		high - low,
		math.Abs(high - prevClose),
		math.Abs(low - prevClose),
	} {
		if math.IsNaN(c) {
			continue
		}
		if math.IsNaN(tr) || c > tr {
			tr = c
		}
	}
	return tr
}
