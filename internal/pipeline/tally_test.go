package pipeline

import (
	"math"
	"testing"

	"signal-systemv1/internal/frame"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
)

func tallyFrame(t *testing.T, closes []float64, longT, shortT []float64, le, se []bool) *frame.Frame {
	t.Helper()
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Time: int64(1000 + i), Close: c}
	}
	f := frame.New(bars)
	if err := f.AddColumn("LongTarget", false, longT); err != nil {
		t.Fatal(err)
	}
	if err := f.AddColumn("ShortTarget", false, shortT); err != nil {
		t.Fatal(err)
	}
	if err := f.AddBool(strategy.ColLongEntry, le); err != nil {
		t.Fatal(err)
	}
	if err := f.AddBool(strategy.ColShortEntry, se); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestTally_Classification(t *testing.T) {
	nan := math.NaN()
	// Row 0: long entry, close 100 under target 105   → losing
	// Row 1: long entry, close 110 reaches target 105 → winning
	// Row 2: long entry, target undefined             → neither
	// Row 3: short entry, close 105 under target 110  → winning
	f := tallyFrame(t,
		[]float64{100, 110, 90, 105},
		[]float64{105, 105, nan, 100},
		[]float64{95, 95, nan, 110},
		[]bool{true, true, true, false},
		[]bool{false, false, false, true},
	)

	got := tally(f, strategy.Targets{Long: "LongTarget", Short: "ShortTarget"})
	want := model.OutcomeCounts{Winning: 2, Losing: 1, Total: 3}
	want.AccuracyPct = 100 * 2.0 / 3.0
	if got != want {
		t.Errorf("counts = %+v, want %+v", got, want)
	}
}

func TestTally_WinningTakesPrecedence(t *testing.T) {
	// Both entries on one row: the long side wins while the short side
	// loses. The row counts once, as winning.
	f := tallyFrame(t,
		[]float64{120},
		[]float64{110},
		[]float64{100},
		[]bool{true},
		[]bool{true},
	)

	got := tally(f, strategy.Targets{Long: "LongTarget", Short: "ShortTarget"})
	want := model.OutcomeCounts{Winning: 1, Losing: 0, Total: 1, AccuracyPct: 100}
	if got != want {
		t.Errorf("counts = %+v, want %+v", got, want)
	}
}

func TestTally_NoEntriesNoCounts(t *testing.T) {
	f := tallyFrame(t,
		[]float64{100, 101},
		[]float64{105, 105},
		[]float64{95, 95},
		[]bool{false, false},
		[]bool{false, false},
	)

	got := tally(f, strategy.Targets{Long: "LongTarget", Short: "ShortTarget"})
	if got != (model.OutcomeCounts{}) {
		t.Errorf("counts = %+v, want zero (accuracy 0, not NaN)", got)
	}
}
