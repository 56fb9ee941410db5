package model

import "testing"

func TestParseIntervals(t *testing.T) {
	ivs, err := ParseIntervals("1m, 5m,1h")
	if err != nil {
		t.Fatalf("ParseIntervals: %v", err)
	}
	want := []Interval{Interval1m, Interval5m, Interval1h}
	if len(ivs) != len(want) {
		t.Fatalf("got %d intervals, want %d", len(ivs), len(want))
	}
	for i := range want {
		if ivs[i] != want[i] {
			t.Errorf("interval[%d] = %q, want %q", i, ivs[i], want[i])
		}
	}

	if _, err := ParseIntervals("1m,7m"); err == nil {
		t.Error("expected error for unknown interval 7m")
	}
	if _, err := ParseIntervals(""); err == nil {
		t.Error("expected error for empty list")
	}
}

func TestIntervalSeconds(t *testing.T) {
	cases := []struct {
		iv   Interval
		want int64
	}{
		{Interval1m, 60},
		{Interval4h, 14400},
		{Interval1d, 86400},
		{Interval1w, 604800},
		{Interval1Mo, 2592000},
		{Interval("2h"), 0},
	}
	for _, c := range cases {
		if got := c.iv.Seconds(); got != c.want {
			t.Errorf("%q.Seconds() = %d, want %d", c.iv, got, c.want)
		}
	}
}
