package indicator

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// SMA is a rolling-window arithmetic mean. Undefined (NaN) until the window
// is full, and NaN for any window containing a NaN input. O(1) per update
// with a preallocated circular buffer.
type SMA struct {
	period  int
	buf     []float64 // circular buffer of the last period inputs
	idx     int       // next write position
	count   int       // total values received
	sum     float64   // sum of the non-NaN cells in the window
	nans    int       // NaN cells currently in the window
	current float64
}

// NewSMA creates an SMA with the given window.
func NewSMA(period int) *SMA {
	return &SMA{
		period:  period,
		buf:     make([]float64, period),
		current: math.NaN(),
	}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(bar model.Bar) { s.UpdateValue(bar.Close) }

// UpdateValue feeds a raw value. The ATR drives an SMA over true ranges
// rather than closes.
func (s *SMA) UpdateValue(x float64) {
	if s.count >= s.period {
		old := s.buf[s.idx]
		if math.IsNaN(old) {
			s.nans--
		} else {
			s.sum -= old
		}
	}
	s.buf[s.idx] = x
	if math.IsNaN(x) {
		s.nans++
	} else {
		s.sum += x
	}
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period || s.nans > 0 {
		s.current = math.NaN()
	} else {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

func (s *SMA) Peek(bar model.Bar) float64 { return s.PeekValue(bar.Close) }

// PeekValue computes what Value() would be with x appended, without mutating
// state.
func (s *SMA) PeekValue(x float64) float64 {
	if s.count+1 < s.period {
		return math.NaN()
	}
	sum, nans := s.sum, s.nans
	if s.count >= s.period {
		old := s.buf[s.idx]
		if math.IsNaN(old) {
			nans--
		} else {
			sum -= old
		}
	}
	if math.IsNaN(x) {
		nans++
	} else {
		sum += x
	}
	if nans > 0 {
		return math.NaN()
	}
	return sum / float64(s.period)
}

// Snapshot serializes the SMA state for checkpoint persistence.
func (s *SMA) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:    "SMA",
		Period:  s.period,
		Buf:     toJSONFloats(s.buf),
		Idx:     s.idx,
		Count:   s.count,
		Sum:     JSONFloat(s.sum),
		NaNs:    s.nans,
		Current: JSONFloat(s.current),
	}
}

// RestoreFromSnapshot restores SMA state from a checkpoint taken with the
// same period. A mismatched snapshot is rejected so the caller cold-starts.
func (s *SMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "SMA" || snap.Period != s.period {
		return snapMismatch(s.Name(), snap)
	}
	s.idx = snap.Idx
	s.count = snap.Count
	s.sum = float64(snap.Sum)
	s.nans = snap.NaNs
	s.current = float64(snap.Current)
	if len(snap.Buf) == s.period {
		s.buf = fromJSONFloats(snap.Buf)
	} else {
		s.buf = make([]float64, s.period)
	}
	return nil
}
