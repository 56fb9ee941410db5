package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// StdDev is a rolling-window sample standard deviation (Bessel-corrected,
// divisor n−1). Undefined until the window is full, and NaN for any window
// containing a NaN input. The value is recomputed two-pass over the window
// each bar, which keeps it numerically stable for long series.
type StdDev struct {
	period  int
	buf     []float64
	idx     int
	count   int
	nans    int
	current float64
}

// NewStdDev creates a StdDev with the given window.
func NewStdDev(period int) *StdDev {
	return &StdDev{
		period:  period,
		buf:     make([]float64, period),
		current: math.NaN(),
	}
}

func (sd *StdDev) Name() string { return "STD_" + strconv.Itoa(sd.period) }

func (sd *StdDev) Update(bar model.Bar) { sd.UpdateValue(bar.Close) }

// UpdateValue feeds a raw value.
func (sd *StdDev) UpdateValue(x float64) {
	if sd.count >= sd.period {
		if math.IsNaN(sd.buf[sd.idx]) {
			sd.nans--
		}
	}
	sd.buf[sd.idx] = x
	if math.IsNaN(x) {
		sd.nans++
	}
	sd.idx = (sd.idx + 1) % sd.period
	sd.count++

	if sd.count < sd.period || sd.nans > 0 {
		sd.current = math.NaN()
	} else {
		sd.current = sampleStd(sd.buf)
	}
}

func (sd *StdDev) Value() float64 { return sd.current }
func (sd *StdDev) Ready() bool    { return sd.count >= sd.period }

func (sd *StdDev) Peek(bar model.Bar) float64 { return sd.PeekValue(bar.Close) }

// PeekValue computes what Value() would be with x appended, without mutating
// state. The virtual window is every live cell except the one x would evict,
// plus x.
func (sd *StdDev) PeekValue(x float64) float64 {
	if sd.count+1 < sd.period || math.IsNaN(x) {
		return math.NaN()
	}
	cells := sd.peekCells()
	n := float64(sd.period)
	sum := x
	for _, v := range cells {
		if math.IsNaN(v) {
			return math.NaN()
		}
		sum += v
	}
	mean := sum / n
	d := x - mean
	ss := d * d
	for _, v := range cells {
		dv := v - mean
		ss += dv * dv
	}
	return math.Sqrt(ss / (n - 1))
}

// peekCells returns the window cells that survive a virtual append: all
// written cells when the window is filling, all but the oldest once full.
func (sd *StdDev) peekCells() []float64 {
	if sd.count >= sd.period {
		// idx is the oldest cell, the one an append evicts.
		cells := make([]float64, 0, sd.period-1)
		for i, v := range sd.buf {
			if i == sd.idx {
				continue
			}
			cells = append(cells, v)
		}
		return cells
	}
	return sd.buf[:sd.count]
}

// Snapshot serializes the StdDev state for checkpoint persistence.
func (sd *StdDev) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "STD",
		Period:  sd.period,
		Buf:     toJSONFloats(sd.buf),
		Idx:     sd.idx,
		Count:   sd.count,
		NaNs:    sd.nans,
		Current: JSONFloat(sd.current),
	}
}

// RestoreFromSnapshot restores StdDev state from a checkpoint taken with the
// same period.
func (sd *StdDev) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "STD" || snap.Period != sd.period {
		return snapMismatch(sd.Name(), snap)
	}
	sd.idx = snap.Idx
	sd.count = snap.Count
	sd.nans = snap.NaNs
	sd.current = float64(snap.Current)
	if len(snap.Buf) == sd.period {
		sd.buf = fromJSONFloats(snap.Buf)
	} else {
		sd.buf = make([]float64, sd.period)
	}
	return nil
}

// sampleStd computes the sample standard deviation of a full window.
// The caller guarantees no NaN cells.
func sampleStd(window []float64) float64 {
	n := float64(len(window))
	if n < 2 {
		return math.NaN()
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / n
	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}
