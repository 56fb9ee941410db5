package frame

import (
	"math"
	"testing"

	"signal-systemv1/internal/model"
)

func series(closes ...float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Time: int64(1000 + 60*i), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return out
}

func sameValues(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d values, want %d", label, len(got), len(want))
	}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("%s row %d: got %v, want NaN", label, i, got[i])
			}
			continue
		}
		if got[i] != want[i] {
			t.Errorf("%s row %d: got %v, want %v", label, i, got[i], want[i])
		}
	}
}

func TestForwardFill_FillsFlaggedColumnsOnly(t *testing.T) {
	nan := math.NaN()
	f := New(series(1, 2, 3, 4, 5))
	if err := f.AddColumn("SMA", false, []float64{nan, nan, 2, nan, 4}); err != nil {
		t.Fatal(err)
	}
	if err := f.AddColumn("RSI", true, []float64{nan, 50, nan, nan, 60}); err != nil {
		t.Fatal(err)
	}

	filled := f.ForwardFill()

	sma, _ := filled.Column("SMA")
	sameValues(t, "SMA (unfilled)", sma, []float64{nan, nan, 2, nan, 4})

	rsi, _ := filled.Column("RSI")
	sameValues(t, "RSI (filled)", rsi, []float64{nan, 50, 50, 50, 60})
}

func TestForwardFill_LeadingUndefinedStays(t *testing.T) {
	nan := math.NaN()
	f := New(series(1, 2, 3))
	f.AddColumn("ROC", true, []float64{nan, nan, 7})

	roc, _ := f.ForwardFill().Column("ROC")
	sameValues(t, "ROC", roc, []float64{nan, nan, 7})
}

func TestForwardFill_Idempotent(t *testing.T) {
	nan := math.NaN()
	f := New(series(1, 2, 3, 4))
	f.AddColumn("ATR", true, []float64{nan, 1.5, nan, 2.5})

	once, _ := f.ForwardFill().Column("ATR")
	twice, _ := f.ForwardFill().ForwardFill().Column("ATR")
	sameValues(t, "ATR", twice, once)
}

func TestForwardFill_DoesNotMutateSource(t *testing.T) {
	nan := math.NaN()
	f := New(series(1, 2, 3))
	f.AddColumn("RSI", true, []float64{nan, 50, nan})

	f.ForwardFill()

	rsi, _ := f.Column("RSI")
	sameValues(t, "source RSI", rsi, []float64{nan, 50, nan})
}

func TestAddColumn_Validation(t *testing.T) {
	f := New(series(1, 2, 3))
	if err := f.AddColumn("X", false, []float64{1, 2}); err == nil {
		t.Error("expected length-mismatch error")
	}
	if err := f.AddColumn("X", false, []float64{1, 2, 3}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := f.AddColumn("X", false, []float64{1, 2, 3}); err == nil {
		t.Error("expected duplicate-column error")
	}
}

func TestRow_Accessors(t *testing.T) {
	f := New(series(10, 20, 30))
	f.AddColumn("SMA", false, []float64{1, 2, 3})
	f.AddBool("Long_Entry", []bool{false, true, false})

	r := f.Row(1)
	if r.Time() != 1060 {
		t.Errorf("Time = %d, want 1060", r.Time())
	}
	if r.Close() != 20 {
		t.Errorf("Close = %v, want 20", r.Close())
	}
	if r.Value("SMA") != 2 {
		t.Errorf("Value(SMA) = %v, want 2", r.Value("SMA"))
	}
	if !math.IsNaN(r.Value("missing")) {
		t.Errorf("Value(missing) = %v, want NaN", r.Value("missing"))
	}

	le, ok := f.Bool("Long_Entry")
	if !ok || !le[1] {
		t.Error("bool column lost")
	}
}

func TestColumns_PreserveOrder(t *testing.T) {
	f := New(series(1, 2))
	f.AddColumn("SMA", false, []float64{1, 1})
	f.AddColumn("Upper_BB", true, []float64{1, 1})
	f.AddColumn("Lower_BB", true, []float64{1, 1})
	f.AddColumn("RSI", true, []float64{1, 1})

	want := []string{"SMA", "Upper_BB", "Lower_BB", "RSI"}
	got := f.ForwardFill().Columns()
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %s, want %s", i, got[i], want[i])
		}
	}
}
