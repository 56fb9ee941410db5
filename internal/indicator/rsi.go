package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// RSI is the Relative Strength Index smoothed by a span-EMA (α = 2/(period+1))
// over clipped close-to-close deltas:
//
//	delta_t = close_t − close_{t−1}        (no delta at t=0)
//	gain_t  = delta_t if delta_t > 0 else 0
//	loss_t  = −delta_t if delta_t < 0 else 0
//	RS      = EMA(gain)/EMA(loss)
//	RSI     = 100 − 100/(1+RS)
//
// An undefined delta compares false on both sides, so gain_0 = loss_0 = 0 and
// both averages seed at zero. The RS division is plain IEEE float64: zero
// losses with positive gains push RSI to exactly 100, and zero gains with
// zero losses (a flat series) leave RSI undefined (NaN) rather than erroring.
// O(1) per update.
type RSI struct {
	period    int
	alpha     float64
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates an RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		alpha:   2.0 / float64(period+1),
		current: math.NaN(),
	}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(bar model.Bar) {
	price := bar.Close
	r.count++

	gain, loss := 0.0, 0.0
	if r.count > 1 {
		delta := price - r.prevClose
		if delta > 0 {
			gain = delta
		}
		if delta < 0 {
			loss = -delta
		}
	}
	r.prevClose = price

	if r.count == 1 {
		r.avgGain = gain
		r.avgLoss = loss
	} else {
		r.avgGain = r.alpha*gain + (1-r.alpha)*r.avgGain
		r.avgLoss = r.alpha*loss + (1-r.alpha)*r.avgLoss
	}

	rs := r.avgGain / r.avgLoss
	r.current = 100 - 100/(1+rs)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count >= 2 }

// Peek computes what RSI would be with bar appended, without mutating state.
func (r *RSI) Peek(bar model.Bar) float64 {
	price := bar.Close
	gain, loss := 0.0, 0.0
	if r.count >= 1 {
		delta := price - r.prevClose
		if delta > 0 {
			gain = delta
		}
		if delta < 0 {
			loss = -delta
		}
	}
	var ag, al float64
	if r.count == 0 {
		ag, al = gain, loss
	} else {
		ag = r.alpha*gain + (1-r.alpha)*r.avgGain
		al = r.alpha*loss + (1-r.alpha)*r.avgLoss
	}
	rs := ag / al
	return 100 - 100/(1+rs)
}

// Snapshot serializes the RSI state for checkpoint persistence.
func (r *RSI) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: JSONFloat(r.prevClose),
		AvgGain:   JSONFloat(r.avgGain),
		AvgLoss:   JSONFloat(r.avgLoss),
		Current:   JSONFloat(r.current),
	}
}

// RestoreFromSnapshot restores RSI state from a checkpoint taken with the
// same period.
func (r *RSI) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "RSI" || snap.Period != r.period {
		return snapMismatch(r.Name(), snap)
	}
	r.count = snap.Count
	r.prevClose = float64(snap.PrevClose)
	r.avgGain = float64(snap.AvgGain)
	r.avgLoss = float64(snap.AvgLoss)
	r.current = float64(snap.Current)
	return nil
}
