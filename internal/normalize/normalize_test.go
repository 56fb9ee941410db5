package normalize

import (
	"errors"
	"math"
	"testing"

	"signal-systemv1/internal/model"
)

func raw(tsMs, o, h, l, c, v string) model.RawBar {
	return model.RawBar{tsMs, o, h, l, c, v}
}

func TestSeries_CanonicalTime(t *testing.T) {
	bars, err := Series([]model.RawBar{
		raw("1672531200000", "1", "2", "0.5", "1.5", "100"),
		raw("1672531260999", "1", "2", "0.5", "1.5", "100"), // sub-second part floors away
	})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if bars[0].Time != 1672531200 {
		t.Errorf("Time = %d, want 1672531200", bars[0].Time)
	}
	if bars[1].Time != 1672531260 {
		t.Errorf("Time = %d, want 1672531260", bars[1].Time)
	}
	if bars[0].Open != 1 || bars[0].High != 2 || bars[0].Low != 0.5 || bars[0].Close != 1.5 {
		t.Errorf("prices not coerced: %+v", bars[0])
	}
}

func TestSeries_DuplicateKeepsFirstThenSorts(t *testing.T) {
	// Two rows share the 2000ms timestamp. The first occurrence in input
	// order must survive even though a lower timestamp sits between them.
	bars, err := Series([]model.RawBar{
		raw("2000", "10", "10", "10", "10", "1"),
		raw("1000", "20", "20", "20", "20", "1"),
		raw("2000", "30", "30", "30", "30", "1"),
	})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].Time != 1 || bars[1].Time != 2 {
		t.Errorf("times = [%d %d], want [1 2]", bars[0].Time, bars[1].Time)
	}
	if bars[1].Close != 10 {
		t.Errorf("duplicate survivor close = %v, want 10 (first occurrence)", bars[1].Close)
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Time <= bars[i-1].Time {
			t.Fatalf("times not strictly increasing at %d", i)
		}
	}
}

func TestSeries_ParseError(t *testing.T) {
	_, err := Series([]model.RawBar{
		raw("1000", "1", "2", "0.5", "oops", "100"),
	})
	if err == nil {
		t.Fatal("expected error for non-numeric close")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error type = %T, want *ParseError", err)
	}
	if pe.Row != 0 || pe.Column != "close" || pe.Value != "oops" {
		t.Errorf("ParseError = %+v", *pe)
	}
}

func TestSeries_BadTimestamp(t *testing.T) {
	for _, ts := range []string{"", "yesterday"} {
		_, err := Series([]model.RawBar{raw(ts, "1", "1", "1", "1", "1")})
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Column != "open_time" {
			t.Errorf("timestamp %q: err = %v, want open_time ParseError", ts, err)
		}
	}
}

func TestSeries_EmptyPriceIsNaN(t *testing.T) {
	bars, err := Series([]model.RawBar{
		raw("1000", "1", "", "0.5", "1.5", "100"),
	})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if !math.IsNaN(bars[0].High) {
		t.Errorf("High = %v, want NaN for empty field", bars[0].High)
	}
}

func TestSeries_ShortRow(t *testing.T) {
	_, err := Series([]model.RawBar{{"1000", "1", "2"}})
	if err == nil {
		t.Fatal("expected error for row with 3 fields")
	}
}

func TestKlines_RetainsVolumeAndStamp(t *testing.T) {
	kls, err := Klines("BTCUSDT", model.Interval1d, []model.RawBar{
		raw("86400000", "1", "2", "0.5", "1.5", "42.25"),
	})
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	k := kls[0]
	if k.Symbol != "BTCUSDT" || k.Interval != model.Interval1d || !k.Closed {
		t.Errorf("stamp = %+v", k)
	}
	if k.Time != 86400 || k.Volume != 42.25 {
		t.Errorf("Time/Volume = %d/%v, want 86400/42.25", k.Time, k.Volume)
	}
}
