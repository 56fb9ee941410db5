package indicator

import (
	"strconv"

	"signal-systemv1/internal/model"
)

// MACD is the Moving Average Convergence/Divergence line together with its
// signal line:
//
//	MACD_t   = EMA(fast, close) − EMA(slow, close)
//	Signal_t = EMA(signal, MACD)
//
// All three smoothers are first-value seeded, so both lines are defined from
// the first bar on. Value() returns the MACD line; Signal() the signal line.
type MACD struct {
	fast  *EMA
	slow  *EMA
	sig   *EMA
	count int
}

// NewMACD creates a MACD with the given spans (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast: NewEMA(fast),
		slow: NewEMA(slow),
		sig:  NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + strconv.Itoa(m.fast.span) + "_" + strconv.Itoa(m.slow.span) + "_" + strconv.Itoa(m.sig.span)
}

func (m *MACD) Update(bar model.Bar) {
	m.count++
	m.fast.UpdateValue(bar.Close)
	m.slow.UpdateValue(bar.Close)
	m.sig.UpdateValue(m.fast.Value() - m.slow.Value())
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.fast.Value() - m.slow.Value() }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.sig.Value() }

func (m *MACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }

// Peek computes what the MACD line would be with bar appended, without
// mutating state.
func (m *MACD) Peek(bar model.Bar) float64 {
	return m.fast.PeekValue(bar.Close) - m.slow.PeekValue(bar.Close)
}

// PeekSignal computes what the signal line would be with bar appended,
// without mutating state.
func (m *MACD) PeekSignal(bar model.Bar) float64 {
	return m.sig.PeekValue(m.Peek(bar))
}

// Snapshot serializes the MACD state for checkpoint persistence.
func (m *MACD) Snapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		Type:   "MACD",
		Period: m.fast.span,
		Count:  m.count,
		Children: []IndicatorSnapshot{
			m.fast.Snapshot(),
			m.slow.Snapshot(),
			m.sig.Snapshot(),
		},
	}
}

// RestoreFromSnapshot restores MACD state from a checkpoint taken with the
// same spans. Children are verified before any part is mutated so a
// mismatch cannot leave the indicator half-restored.
func (m *MACD) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	if snap.Type != "MACD" || len(snap.Children) != 3 {
		return snapMismatch(m.Name(), snap)
	}
	for i, span := range [3]int{m.fast.span, m.slow.span, m.sig.span} {
		if c := snap.Children[i]; c.Type != "EMA" || c.Period != span {
			return snapMismatch(m.Name(), snap)
		}
	}
	if err := m.fast.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	if err := m.slow.RestoreFromSnapshot(snap.Children[1]); err != nil {
		return err
	}
	if err := m.sig.RestoreFromSnapshot(snap.Children[2]); err != nil {
		return err
	}
	m.count = snap.Count
	return nil
}
