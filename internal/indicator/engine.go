package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// Engine maintains one indicator set per symbol:interval key and turns
// incoming klines into per-column indicator values. Designed for
// single-goroutine usage — no locks.
type Engine struct {
	setName string
	params  Params

	// state[key] → live set, created lazily on the first closed bar
	state map[string]Set
}

// NewEngine creates an engine computing the named set for every key it sees.
func NewEngine(setName string, p Params) (*Engine, error) {
	if _, err := NewSet(setName, p); err != nil {
		return nil, err
	}
	return &Engine{
		setName: setName,
		params:  p.withDefaults(),
		state:   make(map[string]Set, 16),
	}, nil
}

// SetName returns the configured set name.
func (e *Engine) SetName() string { return e.setName }

// Params returns the configured windows.
func (e *Engine) Params() Params { return e.params }

// Set returns the live set for a key, or nil if the key has not been seen.
func (e *Engine) Set(key string) Set { return e.state[key] }

// Keys returns the keys with live state.
func (e *Engine) Keys() []string {
	out := make([]string, 0, len(e.state))
	for k := range e.state {
		out = append(out, k)
	}
	return out
}

// Process consumes a closed kline: updates the key's set and returns the
// resulting column values.
func (e *Engine) Process(k model.Kline) []model.IndicatorValue {
	key := k.Key()
	set, ok := e.state[key]
	if !ok {
		set, _ = NewSet(e.setName, e.params) // name validated at construction
		e.state[key] = set
	}
	set.Update(k.Bar())
	return e.results(set.Columns(), set.Values(), k, false)
}

// ProcessPeek computes preview values for a forming kline using PeekValues,
// without mutating state. Returns nil for keys that have not been seeded by
// a closed bar yet.
func (e *Engine) ProcessPeek(k model.Kline) []model.IndicatorValue {
	set, ok := e.state[k.Key()]
	if !ok {
		return nil
	}
	return e.results(set.Columns(), set.PeekValues(k.Bar()), k, true)
}

func (e *Engine) results(cols []Column, vals []float64, k model.Kline, preview bool) []model.IndicatorValue {
	out := make([]model.IndicatorValue, len(cols))
	for i, c := range cols {
		v := vals[i]
		iv := model.IndicatorValue{
			Column:   c.Name,
			Symbol:   k.Symbol,
			Interval: k.Interval,
			Time:     k.Time,
			Preview:  preview,
		}
		if !math.IsNaN(v) {
			iv.Value = v
			iv.Defined = true
		}
		out[i] = iv
	}
	return out
}

// Reconfigure swaps the engine to a new set name or new windows. State for
// each key carries over where the new configuration matches the old one
// (same set, same windows per indicator); everything else cold-starts.
// Returns the total number of restored and cold indicator instances.
func (e *Engine) Reconfigure(setName string, p Params) (restored, cold int, err error) {
	if _, err := NewSet(setName, p); err != nil {
		return 0, 0, err
	}
	p = p.withDefaults()
	for key, old := range e.state {
		fresh, _ := NewSet(setName, p)
		r, c := fresh.Restore(old.Snapshot())
		restored += r
		cold += c
		e.state[key] = fresh
	}
	e.setName = setName
	e.params = p
	return restored, cold, nil
}
