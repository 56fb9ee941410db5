// Package source implements the concrete series sources the pipeline can
// fetch raw rows from: the Binance spot REST API, a local CSV export, the
// SQLite bar archive, and a seeded synthetic walk for tests and offline
// development. Every type satisfies model.SeriesSource and leaves parsing,
// dedupe and ordering to the normalizer.
package source

import (
	"math"
	"strconv"

	"signal-systemv1/internal/model"
)

// rawFromKline renders a stored bar back into the six-field wire shape
// (milliseconds plus text prices) every source speaks.
func rawFromKline(k model.Kline) model.RawBar {
	return model.RawBar{
		strconv.FormatInt(k.Time*1000, 10),
		formatPrice(k.Open),
		formatPrice(k.High),
		formatPrice(k.Low),
		formatPrice(k.Close),
		formatPrice(k.Volume),
	}
}

// formatPrice renders v as its shortest round-trip decimal. NaN becomes an
// empty cell, which the normalizer reads back as NaN.
func formatPrice(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseMillis reads a millisecond timestamp cell, accepting the float form
// some exports write. Reports false for non-numeric text.
func parseMillis(s string) (int64, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(math.Floor(f)), true
	}
	return 0, false
}
