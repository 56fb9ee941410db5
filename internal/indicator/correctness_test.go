package indicator

import (
	"math"
	"testing"

	"signal-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func bar(close float64) model.Bar {
	return model.Bar{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func barHL(high, low, close float64) model.Bar {
	return model.Bar{Open: close, High: high, Low: low, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertNaN(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: got %.6f, want NaN", label, got)
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Window3(t *testing.T) {
	// Hand-calculated SMA(3) for a known close series:
	// Closes: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102.0
	// SMA after bar 4: (102+104+103)/3 = 103.0
	// SMA after bar 5: (104+103+105)/3 = 104.0

	sma := NewSMA(3)
	closes := []float64{100, 102, 104, 103, 105}
	expected := []float64{math.NaN(), math.NaN(), 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, c := range closes {
		sma.Update(bar(c))
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		} else {
			assertNaN(t, "SMA(3) warm-up", sma.Value())
		}
	}
}

func TestSMA_WindowWithNaN(t *testing.T) {
	// A NaN close poisons every window it sits in and only stops mattering
	// once it slides out.
	// Closes: 100, NaN, 104, 103, 105 with window 3:
	//   rows 0-1: warming up
	//   row 2: window {100, NaN, 104}  → NaN
	//   row 3: window {NaN, 104, 103}  → NaN
	//   row 4: window {104, 103, 105}  → 104.0

	sma := NewSMA(3)
	closes := []float64{100, math.NaN(), 104, 103, 105}
	for i, c := range closes {
		sma.Update(bar(c))
		if i < 4 {
			assertNaN(t, "SMA with NaN in window", sma.Value())
		}
	}
	assertClose(t, "SMA after NaN slides out", sma.Value(), 104.0, 1e-9)
}

func TestSMA_Peek_DoesNotMutate(t *testing.T) {
	sma := NewSMA(3)
	for _, c := range []float64{100, 102, 104} {
		sma.Update(bar(c))
	}
	valueBefore := sma.Value()

	sma.Peek(bar(200))

	assertClose(t, "SMA after Peek", sma.Value(), valueBefore, 0)
}

func TestSMA_Peek_CorrectValue(t *testing.T) {
	sma := NewSMA(3)
	// Feed: 100, 102, 104 → SMA = 102
	for _, c := range []float64{100, 102, 104} {
		sma.Update(bar(c))
	}
	// Peek with 106 → (102+104+106)/3 = 104
	assertClose(t, "SMA Peek", sma.Peek(bar(106)), 104.0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// StdDev Correctness (sample std, divisor n−1)
// ────────────────────────────────────────────────────────────

func TestStdDev_Correctness_Window3(t *testing.T) {
	// Closes: 100, 102, 104, 103, 105
	// Row 2: window {100,102,104}, mean 102, ss = 4+0+4 = 8  → √(8/2) = 2.0
	// Row 3: window {102,104,103}, mean 103, ss = 1+1+0 = 2  → √(2/2) = 1.0
	// Row 4: window {104,103,105}, mean 104, ss = 0+1+1 = 2  → √(2/2) = 1.0

	sd := NewStdDev(3)
	closes := []float64{100, 102, 104, 103, 105}
	expected := []float64{math.NaN(), math.NaN(), 2.0, 1.0, 1.0}

	for i, c := range closes {
		sd.Update(bar(c))
		if i < 2 {
			assertNaN(t, "StdDev warm-up", sd.Value())
		} else {
			assertClose(t, "StdDev(3)", sd.Value(), expected[i], 1e-9)
		}
	}
}

func TestStdDev_ConstantSeries_IsExactlyZero(t *testing.T) {
	sd := NewStdDev(20)
	for i := 0; i < 25; i++ {
		sd.Update(bar(1.0))
		if i >= 19 && sd.Value() != 0 {
			t.Fatalf("row %d: constant series std = %v, want exactly 0", i, sd.Value())
		}
	}
}

func TestStdDev_Peek_MatchesNextUpdate(t *testing.T) {
	closes := []float64{100, 102, 104, 103, 105, 101, 99, 102}
	sd := NewStdDev(3)
	check := NewStdDev(3)
	for _, c := range closes {
		peeked := sd.Peek(bar(c))
		check.Update(bar(c))
		want := check.Value()
		if math.IsNaN(want) {
			assertNaN(t, "StdDev Peek", peeked)
		} else {
			assertClose(t, "StdDev Peek", peeked, want, 1e-9)
		}
		sd.Update(bar(c))
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness (first-value seed, α = 2/(span+1))
// ────────────────────────────────────────────────────────────

func TestEMA_FirstValueSeed_Span3(t *testing.T) {
	// EMA(3): α = 2/(3+1) = 0.5, seeded with the first close.
	// Closes: 100, 102, 104, 103, 105
	// e0 = 100
	// e1 = 0.5·102 + 0.5·100    = 101
	// e2 = 0.5·104 + 0.5·101    = 102.5
	// e3 = 0.5·103 + 0.5·102.5  = 102.75
	// e4 = 0.5·105 + 0.5·102.75 = 103.875

	ema := NewEMA(3)
	closes := []float64{100, 102, 104, 103, 105}
	expected := []float64{100, 101, 102.5, 102.75, 103.875}

	for i, c := range closes {
		ema.Update(bar(c))
		if !ema.Ready() {
			t.Errorf("bar %d: EMA not ready, want ready from first bar", i)
		}
		assertClose(t, "EMA(3)", ema.Value(), expected[i], 1e-9)
	}
}

func TestEMA_NaNInput_LeavesValueUnchanged(t *testing.T) {
	// Closes: 100, NaN, 104 with span 3 (α = 0.5):
	// e0 = 100; NaN leaves it at 100; e2 = 0.5·104 + 0.5·100 = 102.

	ema := NewEMA(3)
	ema.Update(bar(100))
	ema.Update(bar(math.NaN()))
	assertClose(t, "EMA after NaN", ema.Value(), 100.0, 0)
	ema.Update(bar(104))
	assertClose(t, "EMA resumes", ema.Value(), 102.0, 1e-9)
}

func TestEMA_Peek_DoesNotMutate(t *testing.T) {
	ema := NewEMA(3)
	for _, c := range []float64{100, 102, 104} {
		ema.Update(bar(c))
	}
	valueBefore := ema.Value()

	ema.Peek(bar(200))

	assertClose(t, "EMA after Peek", ema.Value(), valueBefore, 0)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (span-EMA of clipped deltas)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// RSI(5): α = 2/6 = 1/3 over clipped deltas.
	// Closes: 44.00, 44.34, 44.09, 43.61, 44.33, 44.83
	// Deltas:        +0.34, −0.25, −0.48, +0.72, +0.50
	//
	// avgGain: 0, 0.113333, 0.075556, 0.050370, 0.273580, 0.349053
	// avgLoss: 0, 0,        0.083333, 0.215556, 0.143704, 0.095802
	//
	// Row 0: RS = 0/0            → RSI undefined
	// Row 1: RS = 0.113333/0 = ∞ → RSI = 100 exactly
	// Row 2: RS = 0.906667       → RSI = 47.5524
	// Row 3: RS = 0.233677       → RSI = 18.9417
	// Row 4: RS = 1.903779       → RSI = 65.5622
	// Row 5: RS = 3.643469       → RSI = 78.4644

	rsi := NewRSI(5)
	closes := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83}
	expected := []float64{math.NaN(), 100, 47.5524, 18.9417, 65.5622, 78.4644}

	for i, c := range closes {
		rsi.Update(bar(c))
		if math.IsNaN(expected[i]) {
			assertNaN(t, "RSI row 0", rsi.Value())
		} else {
			assertClose(t, "RSI(5)", rsi.Value(), expected[i], 0.001)
		}
	}
}

func TestRSI_FlatSeries_StaysUndefined(t *testing.T) {
	// Constant closes produce zero gains and zero losses forever: RS is 0/0
	// at every row, so RSI never becomes defined. It must stay NaN, not
	// crash and not collapse to 0 or 100.
	rsi := NewRSI(14)
	for i := 0; i < 25; i++ {
		rsi.Update(bar(1.0))
		assertNaN(t, "flat-series RSI", rsi.Value())
	}
}

func TestRSI_AllUp_IsExactly100(t *testing.T) {
	// Strictly rising closes: avgLoss stays exactly 0 while avgGain > 0,
	// so RS = +Inf and RSI = 100 − 100/(1+Inf) = 100 exactly.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(bar(float64(100 + i)))
		if i > 0 && rsi.Value() != 100 {
			t.Fatalf("bar %d: all-up RSI = %v, want exactly 100", i, rsi.Value())
		}
	}
}

func TestRSI_AllDown_IsExactlyZero(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(bar(float64(200 - i)))
		if i > 0 && rsi.Value() != 0 {
			t.Fatalf("bar %d: all-down RSI = %v, want exactly 0", i, rsi.Value())
		}
	}
}

func TestRSI_DefinedValuesWithinBounds(t *testing.T) {
	closes := []float64{50, 51.2, 50.8, 49.9, 50.3, 52.1, 51.7, 50.2, 49.1, 49.8, 51.0, 50.5}
	rsi := NewRSI(5)
	for i, c := range closes {
		rsi.Update(bar(c))
		v := rsi.Value()
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("bar %d: RSI = %v outside [0,100]", i, v)
		}
	}
}

func TestRSI_Peek_DoesNotMutate(t *testing.T) {
	rsi := NewRSI(5)
	for _, c := range []float64{44.00, 44.34, 44.09, 43.61} {
		rsi.Update(bar(c))
	}
	valueBefore := rsi.Value()

	rsi.Peek(bar(50))

	assertClose(t, "RSI after Peek", rsi.Value(), valueBefore, 0)
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_Correctness_SmallSpans(t *testing.T) {
	// MACD(3,5,3): α_fast = 0.5, α_slow = 1/3, α_sig = 0.5.
	// Closes: 10, 11, 12, 11, 13
	//
	// fast: 10, 10.5, 11.25, 11.125, 12.0625
	// slow: 10, 10.333333, 10.888889, 10.925926, 11.617284
	// line: 0, 0.166667, 0.361111, 0.199074, 0.445216
	// sig:  0, 0.083333, 0.222222, 0.210648, 0.327932

	macd := NewMACD(3, 5, 3)
	closes := []float64{10, 11, 12, 11, 13}
	line := []float64{0, 0.166667, 0.361111, 0.199074, 0.445216}
	sig := []float64{0, 0.083333, 0.222222, 0.210648, 0.327932}

	for i, c := range closes {
		macd.Update(bar(c))
		assertClose(t, "MACD line", macd.Value(), line[i], 0.001)
		assertClose(t, "MACD signal", macd.Signal(), sig[i], 0.001)
	}
}

func TestMACD_DefinedFromFirstBar(t *testing.T) {
	macd := NewMACD(12, 26, 9)
	macd.Update(bar(100))
	if !macd.Ready() {
		t.Error("MACD not ready after first bar")
	}
	assertClose(t, "MACD first bar", macd.Value(), 0, 0)
	assertClose(t, "Signal first bar", macd.Signal(), 0, 0)
}

func TestMACD_TrendingUp_TurnsPositive(t *testing.T) {
	macd := NewMACD(12, 26, 9)
	for i := 0; i < 30; i++ {
		macd.Update(bar(100 + float64(i)))
	}
	if macd.Value() <= 0 {
		t.Errorf("MACD after 30 rising closes = %v, want > 0", macd.Value())
	}
	if macd.Value() <= macd.Signal() {
		t.Errorf("MACD %v not above signal %v in a steady uptrend", macd.Value(), macd.Signal())
	}
}

func TestMACD_Peek_DoesNotMutate(t *testing.T) {
	macd := NewMACD(3, 5, 3)
	for _, c := range []float64{10, 11, 12} {
		macd.Update(bar(c))
	}
	lineBefore, sigBefore := macd.Value(), macd.Signal()

	macd.Peek(bar(20))
	macd.PeekSignal(bar(20))

	assertClose(t, "MACD line after Peek", macd.Value(), lineBefore, 0)
	assertClose(t, "MACD signal after Peek", macd.Signal(), sigBefore, 0)
}

// ────────────────────────────────────────────────────────────
// ROC Correctness
// ────────────────────────────────────────────────────────────

func TestROC_Correctness_Period2(t *testing.T) {
	// ROC(2): 100·(close_t − close_{t−2})/close_{t−2}
	// Closes: 10, 11, 12, 13
	// Row 2: 100·(12−10)/10 = 20
	// Row 3: 100·(13−11)/11 = 18.181818

	roc := NewROC(2)
	closes := []float64{10, 11, 12, 13}
	for i, c := range closes {
		roc.Update(bar(c))
		switch i {
		case 0, 1:
			assertNaN(t, "ROC warm-up", roc.Value())
		case 2:
			assertClose(t, "ROC row 2", roc.Value(), 20.0, 1e-9)
		case 3:
			assertClose(t, "ROC row 3", roc.Value(), 18.181818, 1e-5)
		}
	}
}

func TestROC_Peek_MatchesNextUpdate(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 12.5, 14}
	roc := NewROC(2)
	check := NewROC(2)
	for _, c := range closes {
		peeked := roc.Peek(bar(c))
		check.Update(bar(c))
		want := check.Value()
		if math.IsNaN(want) {
			assertNaN(t, "ROC Peek", peeked)
		} else {
			assertClose(t, "ROC Peek", peeked, want, 1e-9)
		}
		roc.Update(bar(c))
	}
}

// ────────────────────────────────────────────────────────────
// ATR Correctness
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period3(t *testing.T) {
	// Bars (high, low, close):
	//   b0: 10.5,  9.5, 10 → TR0 = high−low = 1.0 (no previous close)
	//   b1: 11.5, 10.5, 11 → TR1 = max(1.0, |11.5−10|, |10.5−10|) = 1.5
	//   b2: 12.5, 11.5, 12 → TR2 = max(1.0, |12.5−11|, |11.5−11|) = 1.5
	//   ATR after b2 = (1.0+1.5+1.5)/3 = 1.333333
	//   b3: 13.5, 12.5, 13 → TR3 = 1.5 → ATR = (1.5+1.5+1.5)/3 = 1.5

	atr := NewATR(3)
	closes := []float64{10, 11, 12, 13}
	for i, c := range closes {
		atr.Update(barHL(c+0.5, c-0.5, c))
		switch i {
		case 0, 1:
			assertNaN(t, "ATR warm-up", atr.Value())
		case 2:
			assertClose(t, "ATR row 2", atr.Value(), 4.0/3.0, 1e-9)
		case 3:
			assertClose(t, "ATR row 3", atr.Value(), 1.5, 1e-9)
		}
	}
}

func TestTrueRange_SkipsMissingPrevClose(t *testing.T) {
	if got := trueRange(10.5, 9.5, math.NaN()); got != 1.0 {
		t.Errorf("first-bar TR = %v, want 1.0", got)
	}
	// Gap up: previous close far below the bar's range.
	if got := trueRange(20.5, 19.5, 10); got != 10.5 {
		t.Errorf("gap TR = %v, want 10.5", got)
	}
	if got := trueRange(math.NaN(), math.NaN(), math.NaN()); !math.IsNaN(got) {
		t.Errorf("all-NaN TR = %v, want NaN", got)
	}
}

func TestATR_Peek_DoesNotMutate(t *testing.T) {
	atr := NewATR(3)
	for _, c := range []float64{10, 11, 12} {
		atr.Update(bar(c))
	}
	valueBefore := atr.Value()

	atr.Peek(bar(30))

	assertClose(t, "ATR after Peek", atr.Value(), valueBefore, 0)
}

// ────────────────────────────────────────────────────────────
// Set-level properties
// ────────────────────────────────────────────────────────────

func TestSets_ValuesAlignWithColumns(t *testing.T) {
	for _, name := range SetNames() {
		set, err := NewSet(name, DefaultParams())
		if err != nil {
			t.Fatalf("NewSet(%s): %v", name, err)
		}
		if got, want := len(set.Values()), len(set.Columns()); got != want {
			t.Errorf("%s: %d values for %d columns", name, got, want)
		}
		set.Update(bar(100))
		if got, want := len(set.Values()), len(set.Columns()); got != want {
			t.Errorf("%s after update: %d values for %d columns", name, got, want)
		}
	}
}

func TestSets_PeekMatchesNextUpdate(t *testing.T) {
	closes := []float64{100, 101.5, 99.8, 102.2, 103.0, 101.1, 100.4, 104.2,
		103.3, 102.8, 105.0, 104.1, 103.6, 106.2, 105.5, 104.9, 107.1, 106.4,
		105.8, 108.0, 107.2, 106.6, 109.1, 108.3, 107.7}

	for _, name := range SetNames() {
		t.Run(name, func(t *testing.T) {
			set, _ := NewSet(name, DefaultParams())
			check, _ := NewSet(name, DefaultParams())
			cols := set.Columns()
			for bi, c := range closes {
				b := bar(c)
				peeked := set.PeekValues(b)
				check.Update(b)
				want := check.Values()
				for ci := range cols {
					p, w := peeked[ci], want[ci]
					if math.IsNaN(w) {
						if !math.IsNaN(p) {
							t.Errorf("bar %d col %s: peek %v, want NaN", bi, cols[ci].Name, p)
						}
						continue
					}
					assertClose(t, cols[ci].Name+" peek", p, w, 1e-9)
				}
				set.Update(b)
			}
		})
	}
}

func TestBollingerBands_ContainSMA(t *testing.T) {
	set := NewBollingerRSISet(DefaultParams())
	closes := []float64{100, 101.5, 99.8, 102.2, 103.0, 101.1, 100.4, 104.2,
		103.3, 102.8, 105.0, 104.1, 103.6, 106.2, 105.5, 104.9, 107.1, 106.4,
		105.8, 108.0, 107.2, 106.6}
	for i, c := range closes {
		set.Update(bar(c))
		vals := set.Values()
		sma, upper, lower := vals[0], vals[1], vals[2]
		if math.IsNaN(sma) {
			continue
		}
		if !(lower <= sma && sma <= upper) {
			t.Errorf("bar %d: bands violated: lower=%v sma=%v upper=%v", i, lower, sma, upper)
		}
	}
}
