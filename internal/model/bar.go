package model

// Bar is one OHLC bar of a normalized price series. Time is the bar open time
// in epoch seconds and is the row key: a normalized series is strictly
// increasing in Time with no duplicate rows. Price fields may be NaN when the
// source row left them empty.
type Bar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// RawBar is one source row before normalization: at least six ordered fields
// (timestamp-in-milliseconds, open, high, low, close, volume), all as text.
// Sources append extra fields (close time, quote volume, trade count, ...);
// the normalizer ignores everything past the sixth.
type RawBar []string
