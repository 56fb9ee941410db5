package indicator

import (
	"encoding/json"
	"fmt"
	"math"
)

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Indicator
	Snapshot() IndicatorSnapshot
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

// JSONFloat is a float64 that survives JSON round-trips when non-finite:
// encoding/json rejects NaN and ±Inf, so those encode as strings and decode
// back to the same non-finite value. Indicator state is NaN during warm-up,
// which makes this the only safe carrier for checkpoint payloads.
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"NaN"`, "null":
		*f = JSONFloat(math.NaN())
		return nil
	case `"+Inf"`:
		*f = JSONFloat(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = JSONFloat(math.Inf(-1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

// IndicatorSnapshot holds the serialized state of a single indicator
// instance. Composite indicators (MACD, ATR) nest their parts in Children.
type IndicatorSnapshot struct {
	Type   string `json:"type"` // "SMA", "STD", "EMA", "RSI", "MACD", "ROC", "ATR"
	Period int    `json:"period"`

	// window state (SMA, STD, ROC)
	Buf  []JSONFloat `json:"buf,omitempty"`
	Idx  int         `json:"idx,omitempty"`
	Sum  JSONFloat   `json:"sum,omitempty"`
	NaNs int         `json:"nans,omitempty"`

	// smoother state (EMA)
	Seeded bool `json:"seeded,omitempty"`

	// delta state (RSI, ATR)
	PrevClose JSONFloat `json:"prev_close,omitempty"`
	AvgGain   JSONFloat `json:"avg_gain,omitempty"`
	AvgLoss   JSONFloat `json:"avg_loss,omitempty"`

	Count    int                 `json:"count"`
	Current  JSONFloat           `json:"current"`
	Children []IndicatorSnapshot `json:"children,omitempty"`
}

// SetSnapshot holds the serialized state of one indicator set instance.
type SetSnapshot struct {
	Set        string              `json:"set"`
	Columns    []string            `json:"columns"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// KeySnapshot holds the set state for one symbol:interval key.
type KeySnapshot struct {
	Key  string      `json:"key"`
	Snap SetSnapshot `json:"snap"`
}

// EngineSnapshot holds the full state of an Engine plus the stream position
// it was taken at.
type EngineSnapshot struct {
	StreamID string        `json:"stream_id"` // consumer stream ID at checkpoint time
	Set      string        `json:"set"`
	Keys     []KeySnapshot `json:"keys"`
	Version  int           `json:"version"` // schema version for forward compat
}

// Snapshot captures the full engine state.
func (e *Engine) Snapshot(streamID string) *EngineSnapshot {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Set:      e.setName,
		Version:  1,
		Keys:     make([]KeySnapshot, 0, len(e.state)),
	}
	for key, set := range e.state {
		snap.Keys = append(snap.Keys, KeySnapshot{Key: key, Snap: set.Snapshot()})
	}
	return snap
}

// RestoreSnapshot rebuilds per-key state from a snapshot. It is tolerant of
// configuration changes: parts that no longer match cold-start, keys for a
// different set are skipped entirely. Returns the number of restored and
// cold indicator instances.
func (e *Engine) RestoreSnapshot(snap *EngineSnapshot) (restored, cold int) {
	if snap == nil {
		return 0, 0
	}
	for _, ks := range snap.Keys {
		if ks.Snap.Set != e.setName {
			continue
		}
		fresh, err := NewSet(e.setName, e.params)
		if err != nil {
			continue
		}
		r, c := fresh.Restore(ks.Snap)
		if r == 0 {
			continue // nothing usable, let the key re-seed from live bars
		}
		restored += r
		cold += c
		e.state[ks.Key] = fresh
	}
	return restored, cold
}

func toJSONFloats(xs []float64) []JSONFloat {
	out := make([]JSONFloat, len(xs))
	for i, v := range xs {
		out[i] = JSONFloat(v)
	}
	return out
}

func fromJSONFloats(xs []JSONFloat) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = float64(v)
	}
	return out
}

func snapMismatch(want string, snap IndicatorSnapshot) error {
	return fmt.Errorf("indicator snapshot: got %s period %d, want %s", snap.Type, snap.Period, want)
}
