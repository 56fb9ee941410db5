package indicator

import (
	"log"

	"signal-systemv1/internal/model"
)

// KlineBackfiller is the read capability needed for warm-up backfill.
type KlineBackfiller interface {
	ReadRange(symbol string, interval model.Interval, fromTS, toTS int64) ([]model.Kline, error)
}

// Restorer orchestrates engine state restoration at service startup.
// It follows a priority chain: Redis snapshot → SQLite snapshot → cold start,
// after which a stored-bar backfill warms whatever stayed cold.
type Restorer struct {
	setName string
	params  Params
}

// NewRestorer creates a Restorer for the given engine configuration.
func NewRestorer(setName string, p Params) *Restorer {
	return &Restorer{setName: setName, params: p.withDefaults()}
}

// RestoreFromSnap builds an engine from a snapshot. A nil snapshot or a
// failed restore yields a fresh engine (cold start).
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	engine, err := NewEngine(r.setName, r.params)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		log.Println("[restorer] no snapshot found — cold starting indicator engine")
		return engine, nil
	}

	log.Printf("[restorer] restoring from snapshot (version=%d, streamID=%s, keys=%d)",
		snap.Version, snap.StreamID, len(snap.Keys))

	restored, cold := engine.RestoreSnapshot(snap)
	if restored == 0 {
		log.Println("[restorer] WARNING: snapshot had no usable state — cold starting")
		return engine, nil
	}
	log.Printf("[restorer] ✅ restored %d indicators (%d cold) from snapshot", restored, cold)
	return engine, nil
}

// ReplayKlines feeds closed bars into the engine to catch up from the
// snapshot position to the present. Returns the number of bars replayed.
func (r *Restorer) ReplayKlines(engine *Engine, klines []model.Kline) int {
	count := 0
	for _, k := range klines {
		if !k.Closed {
			continue
		}
		engine.Process(k)
		count++
	}
	log.Printf("[restorer] replayed %d bars to catch up", count)
	return count
}

// Backfill reads recent stored bars for each symbol+interval and feeds them
// into the engine to warm up cold state. Call after restore and before the
// live consumer starts. If onValues is non-nil it receives the computed
// values per bar, letting the caller populate history streams.
func (r *Restorer) Backfill(engine *Engine, reader KlineBackfiller, symbols []string,
	intervals []model.Interval, onValues func([]model.IndicatorValue)) int {

	if reader == nil {
		return 0
	}
	depth := r.params.MaxWindow()
	total := 0
	for _, iv := range intervals {
		for _, sym := range symbols {
			klines, err := reader.ReadRange(sym, iv, 0, 0)
			if err != nil {
				log.Printf("[restorer] WARNING: backfill read %s %s failed: %v", sym, iv, err)
				continue
			}
			// Only the most recent bars matter for warm-up.
			if len(klines) > depth {
				klines = klines[len(klines)-depth:]
			}
			for _, k := range klines {
				k.Closed = true
				vals := engine.Process(k)
				if onValues != nil && len(vals) > 0 {
					onValues(vals)
				}
			}
			if len(klines) > 0 {
				log.Printf("[restorer] backfilled %d bars for %s %s", len(klines), sym, iv)
				total += len(klines)
			}
		}
	}
	if total > 0 {
		log.Printf("[restorer] ✅ backfilled %d total bars", total)
	}
	return total
}
