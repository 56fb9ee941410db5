package model

import "encoding/json"

// Side distinguishes long from short signals.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SignalKind distinguishes entries from exits.
type SignalKind string

const (
	SignalEntry SignalKind = "ENTRY"
	SignalExit  SignalKind = "EXIT"
)

// SignalEvent is one rule firing on one bar: the live-path record published to
// streams and handed to notifiers.
type SignalEvent struct {
	ID       string     `json:"id"` // run- or consumer-scoped UUID
	Symbol   string     `json:"symbol"`
	Interval Interval   `json:"interval"`
	Time     int64      `json:"time"`
	Rule     string     `json:"rule"`
	Side     Side       `json:"side"`
	Kind     SignalKind `json:"kind"`
	Close    float64    `json:"close"`
	Reason   string     `json:"reason"`
}

// Key returns "symbol:interval".
func (e *SignalEvent) Key() string {
	return e.Symbol + ":" + string(e.Interval)
}

// StreamKey returns the Redis stream key: "signals:{interval}:{symbol}".
func (e *SignalEvent) StreamKey() string {
	return "signals:" + string(e.Interval) + ":" + e.Symbol
}

// JSON returns the JSON-encoded event.
func (e *SignalEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
