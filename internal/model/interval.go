package model

import (
	"fmt"
	"strings"
)

// Interval is a canonical kline interval. The string forms match the exchange
// REST/WS API ("1m", "4h", "1d", ...).
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1Mo Interval = "1M"
)

// intervalSeconds maps each interval to its bucket width in seconds. 1M uses
// 30 days: calendar months are not fixed width, 30d is the bucketing
// convention.
var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval30m: 1800,
	Interval1h:  3600,
	Interval4h:  14400,
	Interval1d:  86400,
	Interval1w:  604800,
	Interval1Mo: 2592000,
}

// Seconds returns the interval's bucket width, or 0 for unknown intervals.
func (iv Interval) Seconds() int64 {
	return intervalSeconds[iv]
}

// Valid reports whether iv is a known interval.
func (iv Interval) Valid() bool {
	_, ok := intervalSeconds[iv]
	return ok
}

// ParseInterval validates a user-supplied interval string.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.TrimSpace(s))
	if !iv.Valid() {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// ParseIntervals parses a comma-separated interval list, e.g. "1m,5m,1h".
func ParseIntervals(s string) ([]Interval, error) {
	parts := strings.Split(s, ",")
	out := make([]Interval, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		iv, err := ParseInterval(p)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty interval list %q", s)
	}
	return out, nil
}
