// Package normalize converts raw source rows into clean, ordered bar series.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"signal-systemv1/internal/model"
)

// columns are the canonical names assigned to the first six fields of a raw
// row. Everything past volume is ignored.
var columns = [6]string{"open_time", "open", "high", "low", "close", "volume"}

// ParseError reports a raw field that could not be coerced to a number.
// Empty price fields are not errors (they parse to NaN); anything else
// non-numeric aborts the run with no partial output.
type ParseError struct {
	Row    int    // zero-based source row index
	Column string // canonical column name
	Value  string // offending text
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("normalize: row %d column %s: cannot parse %q", e.Row, e.Column, e.Value)
}

// Series converts raw rows into a normalized series:
//
//   - open_time is taken as milliseconds and floor-divided to epoch seconds
//   - open/high/low/close coerce to float64, empty fields to NaN
//   - volume and any extra fields are dropped
//   - duplicate timestamps keep the first occurrence in input order, then the
//     result is sorted ascending by time
//
// The output is strictly increasing in Time with no duplicates.
func Series(rows []model.RawBar) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("normalize: row %d has %d fields, want at least 6", i, len(row))
		}
		ts, err := parseTimeMs(row[0])
		if err != nil {
			return nil, &ParseError{Row: i, Column: columns[0], Value: row[0]}
		}
		var px [4]float64
		for j := 0; j < 4; j++ {
			v, err := parsePrice(row[1+j])
			if err != nil {
				return nil, &ParseError{Row: i, Column: columns[1+j], Value: row[1+j]}
			}
			px[j] = v
		}
		bars = append(bars, model.Bar{Time: ts, Open: px[0], High: px[1], Low: px[2], Close: px[3]})
	}
	return Dedupe(bars), nil
}

// Klines parses raw rows into stamped closed bars for storage or export.
// Same rules as Series, with volume retained (empty volume parses to NaN).
func Klines(symbol string, interval model.Interval, rows []model.RawBar) ([]model.Kline, error) {
	kls := make([]model.Kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("normalize: row %d has %d fields, want at least 6", i, len(row))
		}
		ts, err := parseTimeMs(row[0])
		if err != nil {
			return nil, &ParseError{Row: i, Column: columns[0], Value: row[0]}
		}
		var f [5]float64
		for j := 0; j < 5; j++ {
			v, err := parsePrice(row[1+j])
			if err != nil {
				return nil, &ParseError{Row: i, Column: columns[1+j], Value: row[1+j]}
			}
			f[j] = v
		}
		kls = append(kls, model.Kline{
			Symbol:   symbol,
			Interval: interval,
			Time:     ts,
			Open:     f[0],
			High:     f[1],
			Low:      f[2],
			Close:    f[3],
			Volume:   f[4],
			Closed:   true,
		})
	}
	return DedupeKlines(kls), nil
}

// Dedupe drops bars whose Time was already seen, keeping the first occurrence
// in input order, then sorts ascending by Time. Keep-first is decided on the
// input order, before sorting.
func Dedupe(bars []model.Bar) []model.Bar {
	seen := make(map[int64]struct{}, len(bars))
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if _, dup := seen[b.Time]; dup {
			continue
		}
		seen[b.Time] = struct{}{}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// DedupeKlines is Dedupe for stamped bars.
func DedupeKlines(kls []model.Kline) []model.Kline {
	seen := make(map[int64]struct{}, len(kls))
	out := make([]model.Kline, 0, len(kls))
	for _, k := range kls {
		if _, dup := seen[k.Time]; dup {
			continue
		}
		seen[k.Time] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// parseTimeMs parses a millisecond timestamp field. Floats are floored;
// the ms→s division also floors so pre-epoch times bucket consistently.
func parseTimeMs(s string) (int64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	ms, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(t, 64)
		if ferr != nil {
			return 0, ferr
		}
		ms = int64(math.Floor(f))
	}
	sec := ms / 1000
	if ms%1000 != 0 && ms < 0 {
		sec--
	}
	return sec, nil
}

// parsePrice parses a price field. Empty means the source left the cell
// blank: that is NaN, not an error.
func parsePrice(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(t, 64)
}
