package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// ROC is the n-bar rate of change: 100·(close_t − close_{t−n})/close_{t−n}.
// Undefined for the first n bars. The division is plain IEEE float64, so a
// zero reference close yields ±Inf rather than an error.
type ROC struct {
	period  int
	buf     []float64 // last period closes, circular
	idx     int
	count   int
	current float64
}

// NewROC creates a ROC with the given lookback.
func NewROC(period int) *ROC {
	return &ROC{
		period:  period,
		buf:     make([]float64, period),
		current: math.NaN(),
	}
}

func (r *ROC) Name() string { return "ROC_" + strconv.Itoa(r.period) }

func (r *ROC) Update(bar model.Bar) {
	price := bar.Close
	if r.count >= r.period {
		ref := r.buf[r.idx]
		r.current = 100 * (price - ref) / ref
	}
	r.buf[r.idx] = price
	r.idx = (r.idx + 1) % r.period
	r.count++
}

func (r *ROC) Value() float64 { return r.current }
func (r *ROC) Ready() bool    { return r.count > r.period }

// Peek computes what ROC would be with bar appended, without mutating state.
func (r *ROC) Peek(bar model.Bar) float64 {
	if r.count < r.period {
		return math.NaN()
	}
	ref := r.buf[r.idx]
	return 100 * (bar.Close - ref) / ref
}

// Snapshot serializes the ROC state for checkpoint persistence.
func (r *ROC) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "ROC",
		Period:  r.period,
		Buf:     toJSONFloats(r.buf),
		Idx:     r.idx,
		Count:   r.count,
		Current: JSONFloat(r.current),
	}
}

// RestoreFromSnapshot restores ROC state from a checkpoint taken with the
// same lookback.
func (r *ROC) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "ROC" || snap.Period != r.period {
		return snapMismatch(r.Name(), snap)
	}
	r.idx = snap.Idx
	r.count = snap.Count
	r.current = float64(snap.Current)
	if len(snap.Buf) == r.period {
		r.buf = fromJSONFloats(snap.Buf)
	} else {
		r.buf = make([]float64, r.period)
	}
	return nil
}
