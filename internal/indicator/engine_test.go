package indicator

import (
	"math"
	"testing"

	"signal-systemv1/internal/model"
)

func makeKline(symbol string, interval model.Interval, close float64) model.Kline {
	return model.Kline{
		Symbol:   symbol,
		Interval: interval,
		Time:     1700000000,
		Open:     close,
		High:     close + 0.5,
		Low:      close - 0.5,
		Close:    close,
		Volume:   100,
		Closed:   true,
	}
}

func TestEngine_BollingerSet_ConstantCloses(t *testing.T) {
	engine, err := NewEngine(SetBollingerRSI, DefaultParams())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	// 25 klines at 100.0: once the 20-bar window fills, SMA = 100 and the
	// bands collapse onto it (std = 0). RSI stays undefined on a flat
	// series, which must surface as Defined=false, never as a NaN payload.
	for i := 0; i < 25; i++ {
		results := engine.Process(makeKline("BTCUSDT", model.Interval1m, 100.0))
		if len(results) != 4 {
			t.Fatalf("kline %d: expected 4 results, got %d", i, len(results))
		}
		if i < 19 {
			continue
		}
		for _, name := range []string{ColSMA, ColUpperBB, ColLowerBB} {
			r := resultFor(t, results, name)
			if !r.Defined {
				t.Errorf("kline %d: %s not defined after warm-up", i, name)
			}
			if math.Abs(r.Value-100.0) > 0.001 {
				t.Errorf("kline %d: %s = %.4f, want 100.0", i, name, r.Value)
			}
		}
		if r := resultFor(t, results, ColRSI); r.Defined {
			t.Errorf("kline %d: flat-series RSI defined with value %.4f", i, r.Value)
		}
	}
}

func resultFor(t *testing.T, results []model.IndicatorValue, column string) model.IndicatorValue {
	t.Helper()
	for _, r := range results {
		if r.Column == column {
			return r
		}
	}
	t.Fatalf("no result for column %s", column)
	return model.IndicatorValue{}
}

func TestEngine_MACDTrendSet_ColumnCount(t *testing.T) {
	engine, _ := NewEngine(SetMACDTrend, DefaultParams())
	for i := 0; i < 20; i++ {
		results := engine.Process(makeKline("A", model.Interval1h, 100+float64(i)))
		if len(results) != 6 {
			t.Fatalf("kline %d: expected 6 results, got %d", i, len(results))
		}
	}
}

func TestEngine_KeysAreIsolated(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, Params{Window: 3})

	// Same symbol on two intervals and a second symbol: three keys, each
	// with its own window.
	for i := 0; i < 5; i++ {
		engine.Process(makeKline("BTCUSDT", model.Interval1m, 100))
		engine.Process(makeKline("BTCUSDT", model.Interval1h, 200))
		engine.Process(makeKline("ETHUSDT", model.Interval1m, 300))
	}
	if got := len(engine.Keys()); got != 3 {
		t.Fatalf("expected 3 keys, got %d", got)
	}

	r1m := engine.Process(makeKline("BTCUSDT", model.Interval1m, 100))
	r1h := engine.Process(makeKline("BTCUSDT", model.Interval1h, 200))
	if v := resultFor(t, r1m, ColSMA); math.Abs(v.Value-100) > 0.001 {
		t.Errorf("1m SMA = %.4f, want 100", v.Value)
	}
	if v := resultFor(t, r1h, ColSMA); math.Abs(v.Value-200) > 0.001 {
		t.Errorf("1h SMA = %.4f, want 200", v.Value)
	}
}

func TestEngine_UnknownSetName(t *testing.T) {
	if _, err := NewEngine("bogus", DefaultParams()); err == nil {
		t.Fatal("expected error for unknown set name")
	}
}

func TestProcessPeek_NilBeforeProcess(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, DefaultParams())

	forming := makeKline("Z", model.Interval1m, 50)
	forming.Closed = false

	if results := engine.ProcessPeek(forming); results != nil {
		t.Fatalf("expected nil results before any Process, got %d", len(results))
	}
}

func TestProcessPeek_PreviewResults(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, Params{Window: 5})

	// Seed 5 closed klines at 100.0 so the window is full.
	for i := 0; i < 5; i++ {
		engine.Process(makeKline("T1", model.Interval1m, 100.0))
	}

	// Peek with a forming kline at 110.0: SMA = (100·4 + 110)/5 = 102.
	forming := makeKline("T1", model.Interval1m, 110.0)
	forming.Closed = false

	results := engine.ProcessPeek(forming)
	if len(results) != 4 {
		t.Fatalf("expected 4 peek results, got %d", len(results))
	}
	sma := resultFor(t, results, ColSMA)
	if !sma.Preview {
		t.Error("expected Preview=true on peek result")
	}
	if !sma.Defined {
		t.Error("expected Defined=true on peek result")
	}
	if math.Abs(sma.Value-102.0) > 0.01 {
		t.Errorf("peek SMA = %.4f, want 102.0", sma.Value)
	}
}

func TestProcessPeek_DoesNotMutateState(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, Params{Window: 5})

	for i := 0; i < 5; i++ {
		engine.Process(makeKline("M1", model.Interval1m, 100.0))
	}

	baseline := engine.Process(makeKline("M1", model.Interval1m, 100.0))
	valueBefore := resultFor(t, baseline, ColSMA).Value

	forming := makeKline("M1", model.Interval1m, 999.0)
	forming.Closed = false
	engine.ProcessPeek(forming)

	after := engine.Process(makeKline("M1", model.Interval1m, 100.0))
	valueAfter := resultFor(t, after, ColSMA).Value
	if math.Abs(valueAfter-valueBefore) > 0.001 {
		t.Errorf("ProcessPeek mutated state: before=%.4f after=%.4f", valueBefore, valueAfter)
	}
}

func TestEngine_Reconfigure_SameConfigCarriesState(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, Params{Window: 3})
	control, _ := NewSet(SetBollingerRSI, Params{Window: 3})

	closes := []float64{100, 102, 104, 103, 105}
	for _, c := range closes {
		engine.Process(makeKline("K", model.Interval1m, c))
		control.Update(bar(c))
	}

	restored, cold, err := engine.Reconfigure(SetBollingerRSI, Params{Window: 3})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if restored == 0 || cold != 0 {
		t.Fatalf("restored=%d cold=%d, want all restored", restored, cold)
	}

	// The carried-over state must continue exactly where the control does.
	control.Update(bar(106))
	results := engine.Process(makeKline("K", model.Interval1m, 106))
	want := control.Values()
	cols := control.Columns()
	for i, col := range cols {
		got := resultFor(t, results, col.Name)
		if math.IsNaN(want[i]) {
			if got.Defined {
				t.Errorf("%s: defined %v, want undefined", col.Name, got.Value)
			}
			continue
		}
		assertClose(t, col.Name+" after reconfigure", got.Value, want[i], 1e-9)
	}
}

func TestEngine_Reconfigure_NewWindowColdStarts(t *testing.T) {
	engine, _ := NewEngine(SetBollingerRSI, Params{Window: 3})
	for _, c := range []float64{100, 102, 104, 103, 105} {
		engine.Process(makeKline("K", model.Interval1m, c))
	}

	// Window 3 → 4: SMA and std cannot carry over, RSI (unchanged period)
	// can.
	restored, cold, err := engine.Reconfigure(SetBollingerRSI, Params{Window: 4})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if cold != 2 || restored != 1 {
		t.Fatalf("restored=%d cold=%d, want restored=1 cold=2", restored, cold)
	}

	set := engine.Set("K:1m")
	if set == nil {
		t.Fatal("key state lost across Reconfigure")
	}
	if v := set.Values()[0]; !math.IsNaN(v) {
		t.Errorf("cold SMA = %v, want NaN until the new window fills", v)
	}
}
