package model

import "encoding/json"

// Kline is a symbol+interval stamped bar as delivered by a feed, store or
// exporter. Closed reports whether the bar's interval has completed; live
// feeds emit forming updates with Closed=false until the bucket rolls over.
type Kline struct {
	Symbol   string   `json:"symbol" parquet:"symbol"`
	Interval Interval `json:"interval" parquet:"interval"`
	Time     int64    `json:"time" parquet:"time"`
	Open     float64  `json:"open" parquet:"open"`
	High     float64  `json:"high" parquet:"high"`
	Low      float64  `json:"low" parquet:"low"`
	Close    float64  `json:"close" parquet:"close"`
	Volume   float64  `json:"volume" parquet:"volume"`
	Closed   bool     `json:"closed" parquet:"-"`
}

// Key returns "symbol:interval".
func (k *Kline) Key() string {
	return k.Symbol + ":" + string(k.Interval)
}

// StreamKey returns the Redis stream key: "bars:{interval}:{symbol}".
func (k *Kline) StreamKey() string {
	return "bars:" + string(k.Interval) + ":" + k.Symbol
}

// Bar returns the pipeline view of the kline.
func (k *Kline) Bar() Bar {
	return Bar{Time: k.Time, Open: k.Open, High: k.High, Low: k.Low, Close: k.Close}
}

// JSON returns the JSON-encoded kline (ignoring errors for hot-path usage).
func (k *Kline) JSON() []byte {
	b, _ := json.Marshal(k)
	return b
}

// IndicatorValue is one computed indicator column value for a symbol+interval,
// published by the live engine. Undefined values carry Defined=false and a
// zero Value so the payload stays encodable (NaN is not valid JSON).
type IndicatorValue struct {
	Column   string   `json:"column"`
	Symbol   string   `json:"symbol"`
	Interval Interval `json:"interval"`
	Time     int64    `json:"time"`
	Value    float64  `json:"value"`
	Defined  bool     `json:"defined"`
	Preview  bool     `json:"preview"` // true for values peeked from forming bars
}

// StreamKey returns the Redis stream key: "ind:{column}:{interval}:{symbol}".
func (v *IndicatorValue) StreamKey() string {
	return "ind:" + v.Column + ":" + string(v.Interval) + ":" + v.Symbol
}

// JSON returns the JSON-encoded value.
func (v *IndicatorValue) JSON() []byte {
	b, _ := json.Marshal(v)
	return b
}
