package indicator

import (
	"fmt"

	"signal-systemv1/internal/model"
)

// Column names shared by the sets, the frame and the rules that read them.
const (
	ColSMA        = "SMA"
	ColUpperBB    = "Upper_BB"
	ColLowerBB    = "Lower_BB"
	ColRSI        = "RSI"
	ColMACD       = "MACD"
	ColSignalLine = "Signal_Line"
	ColROC        = "ROC"
	ColATR        = "ATR"
)

// Registered set names.
const (
	SetBollingerRSI = "bollinger_rsi"
	SetMACDTrend    = "macd_trend"
)

// Column describes one output column of an indicator set.
type Column struct {
	Name string
	Fill bool // participates in forward-fill
}

// Set is an ordered family of indicators producing named columns. Driving a
// set bar-by-bar over a normalized series yields exactly the columns a batch
// recomputation would, so the batch pipeline and the live engine share the
// same instances. Single-goroutine usage — no locks.
type Set interface {
	// Name returns the registered set name.
	Name() string

	// Columns returns the column layout in computation order.
	Columns() []Column

	// Update consumes the next bar.
	Update(bar model.Bar)

	// Values returns the current value per column, aligned with Columns().
	// Undefined values are NaN.
	Values() []float64

	// PeekValues computes per-column values as if bar were appended next,
	// without mutating state.
	PeekValues(bar model.Bar) []float64

	// Warmup returns the largest window the set needs before every column
	// can be defined.
	Warmup() int

	// Snapshot serializes the set state for checkpoint persistence.
	Snapshot() SetSnapshot

	// Restore loads state from a snapshot, matching indicators by position
	// and configuration. Mismatched parts stay cold.
	Restore(snap SetSnapshot) (restored, cold int)
}

// Params carries the configurable windows shared by the sets. Zero fields
// take the defaults.
type Params struct {
	Window     int     // SMA / Bollinger window
	BandK      float64 // Bollinger band width multiplier
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ROCPeriod  int
	ATRPeriod  int
}

// DefaultParams returns the standard windows: SMA 20, bands ±2σ, RSI 14,
// MACD 12/26/9, ROC 10, ATR 14.
func DefaultParams() Params {
	return Params{
		Window:     20,
		BandK:      2,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ROCPeriod:  10,
		ATRPeriod:  14,
	}
}

// withDefaults fills zero fields from DefaultParams.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Window <= 0 {
		p.Window = d.Window
	}
	if p.BandK <= 0 {
		p.BandK = d.BandK
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = d.RSIPeriod
	}
	if p.MACDFast <= 0 {
		p.MACDFast = d.MACDFast
	}
	if p.MACDSlow <= 0 {
		p.MACDSlow = d.MACDSlow
	}
	if p.MACDSignal <= 0 {
		p.MACDSignal = d.MACDSignal
	}
	if p.ROCPeriod <= 0 {
		p.ROCPeriod = d.ROCPeriod
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
	return p
}

// MaxWindow returns the largest lookback any indicator across the sets
// needs, used to size warm-up backfills.
func (p Params) MaxWindow() int {
	p = p.withDefaults()
	w := p.Window
	for _, n := range []int{p.RSIPeriod + 1, p.MACDSlow, p.MACDSignal, p.ROCPeriod + 1, p.ATRPeriod} {
		if n > w {
			w = n
		}
	}
	return w
}

// NewSet builds a registered set by name.
func NewSet(name string, p Params) (Set, error) {
	p = p.withDefaults()
	switch name {
	case SetBollingerRSI:
		return NewBollingerRSISet(p), nil
	case SetMACDTrend:
		return NewMACDTrendSet(p), nil
	}
	return nil, fmt.Errorf("unknown indicator set %q", name)
}

// SetNames lists the registered set names.
func SetNames() []string {
	return []string{SetBollingerRSI, SetMACDTrend}
}

// ── bollinger_rsi ──

// BollingerRSISet is the mean-reversion set: SMA, Upper_BB, Lower_BB, RSI.
// The rolling sample std feeds the bands without being a column of its own.
type BollingerRSISet struct {
	window int
	k      float64
	sma    *SMA
	std    *StdDev
	rsi    *RSI
}

// NewBollingerRSISet creates the set with the given params.
func NewBollingerRSISet(p Params) *BollingerRSISet {
	p = p.withDefaults()
	return &BollingerRSISet{
		window: p.Window,
		k:      p.BandK,
		sma:    NewSMA(p.Window),
		std:    NewStdDev(p.Window),
		rsi:    NewRSI(p.RSIPeriod),
	}
}

func (s *BollingerRSISet) Name() string { return SetBollingerRSI }

func (s *BollingerRSISet) Columns() []Column {
	return []Column{
		{Name: ColSMA},
		{Name: ColUpperBB, Fill: true},
		{Name: ColLowerBB, Fill: true},
		{Name: ColRSI, Fill: true},
	}
}

func (s *BollingerRSISet) Update(bar model.Bar) {
	s.sma.Update(bar)
	s.std.Update(bar)
	s.rsi.Update(bar)
}

func (s *BollingerRSISet) Values() []float64 {
	sma, std := s.sma.Value(), s.std.Value()
	return []float64{sma, sma + s.k*std, sma - s.k*std, s.rsi.Value()}
}

func (s *BollingerRSISet) PeekValues(bar model.Bar) []float64 {
	sma, std := s.sma.Peek(bar), s.std.Peek(bar)
	return []float64{sma, sma + s.k*std, sma - s.k*std, s.rsi.Peek(bar)}
}

func (s *BollingerRSISet) Warmup() int { return s.window }

// Snapshot serializes the set state.
func (s *BollingerRSISet) Snapshot() SetSnapshot {
	return SetSnapshot{
		Set:        s.Name(),
		Columns:    columnNames(s.Columns()),
		Indicators: snapshotAll(s.sma, s.std, s.rsi),
	}
}

// Restore loads state from a snapshot of an identically configured set.
func (s *BollingerRSISet) Restore(snap SetSnapshot) (restored, cold int) {
	return restoreAll(snap, s.Name(), s.sma, s.std, s.rsi)
}

// ── macd_trend ──

// MACDTrendSet is the trend/momentum set: SMA, MACD, Signal_Line, RSI, ROC,
// ATR.
type MACDTrendSet struct {
	window int
	sma    *SMA
	macd   *MACD
	rsi    *RSI
	roc    *ROC
	atr    *ATR
}

// NewMACDTrendSet creates the set with the given params.
func NewMACDTrendSet(p Params) *MACDTrendSet {
	p = p.withDefaults()
	return &MACDTrendSet{
		window: p.Window,
		sma:    NewSMA(p.Window),
		macd:   NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		rsi:    NewRSI(p.RSIPeriod),
		roc:    NewROC(p.ROCPeriod),
		atr:    NewATR(p.ATRPeriod),
	}
}

func (s *MACDTrendSet) Name() string { return SetMACDTrend }

func (s *MACDTrendSet) Columns() []Column {
	return []Column{
		{Name: ColSMA},
		{Name: ColMACD, Fill: true},
		{Name: ColSignalLine, Fill: true},
		{Name: ColRSI, Fill: true},
		{Name: ColROC, Fill: true},
		{Name: ColATR, Fill: true},
	}
}

func (s *MACDTrendSet) Update(bar model.Bar) {
	s.sma.Update(bar)
	s.macd.Update(bar)
	s.rsi.Update(bar)
	s.roc.Update(bar)
	s.atr.Update(bar)
}

func (s *MACDTrendSet) Values() []float64 {
	return []float64{
		s.sma.Value(),
		s.macd.Value(),
		s.macd.Signal(),
		s.rsi.Value(),
		s.roc.Value(),
		s.atr.Value(),
	}
}

func (s *MACDTrendSet) PeekValues(bar model.Bar) []float64 {
	return []float64{
		s.sma.Peek(bar),
		s.macd.Peek(bar),
		s.macd.PeekSignal(bar),
		s.rsi.Peek(bar),
		s.roc.Peek(bar),
		s.atr.Peek(bar),
	}
}

func (s *MACDTrendSet) Warmup() int {
	w := s.window
	if n := s.roc.period + 1; n > w {
		w = n
	}
	if n := s.atr.period; n > w {
		w = n
	}
	return w
}

// Snapshot serializes the set state.
func (s *MACDTrendSet) Snapshot() SetSnapshot {
	return SetSnapshot{
		Set:        s.Name(),
		Columns:    columnNames(s.Columns()),
		Indicators: snapshotAll(s.sma, s.macd, s.rsi, s.roc, s.atr),
	}
}

// Restore loads state from a snapshot of an identically configured set.
func (s *MACDTrendSet) Restore(snap SetSnapshot) (restored, cold int) {
	return restoreAll(snap, s.Name(), s.sma, s.macd, s.rsi, s.roc, s.atr)
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func snapshotAll(inds ...Snapshottable) []IndicatorSnapshot {
	out := make([]IndicatorSnapshot, len(inds))
	for i, ind := range inds {
		out[i] = ind.Snapshot()
	}
	return out
}

// restoreAll matches snapshot parts to indicators by position. Parts that
// fail their own type/period verification stay cold.
func restoreAll(snap SetSnapshot, setName string, inds ...Snapshottable) (restored, cold int) {
	if snap.Set != setName {
		return 0, len(inds)
	}
	for i, ind := range inds {
		if i >= len(snap.Indicators) {
			cold++
			continue
		}
		if err := ind.RestoreFromSnapshot(snap.Indicators[i]); err != nil {
			cold++
			continue
		}
		restored++
	}
	return restored, cold
}
