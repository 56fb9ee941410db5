package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
)

// restoreEngine rebuilds the indicator engine at startup: Redis checkpoint
// first, SQLite checkpoint as fallback, cold start when neither exists.
// Cold or missing keys are then warmed from the bar archive. Returns the
// checkpoint used, nil on cold start.
func (svc *Service) restoreEngine(ctx context.Context) (*indicator.EngineSnapshot, error) {
	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID("restore", time.Now()))

	snap := svc.loadSnapshot()
	restorer := indicator.NewRestorer(svc.evaluator.Rule().Set(), svc.params)
	engine, err := restorer.RestoreFromSnap(snap)
	if err != nil {
		return nil, fmt.Errorf("live: restore engine: %w", err)
	}
	svc.mu.Lock()
	svc.engine = engine
	svc.params = engine.Params()
	svc.mu.Unlock()

	if svc.sqlReader != nil {
		backfilled := restorer.Backfill(engine, svc.sqlReader, svc.symbols, svc.allIntervals(),
			func(vals []model.IndicatorValue) {
				svc.publishValues(ctx, vals)
			})
		if backfilled > 0 {
			log.Printf("[live] warmed up indicators with %d archived bars (values published)", backfilled)
		}
	}

	slog.Info("engine restored", append([]any{
		"set", engine.SetName(), "keys", len(engine.Keys()),
	}, logger.LogWithTrace(tctx)...)...)
	return snap, nil
}

// loadSnapshot reads the latest engine checkpoint, Redis first, SQLite as
// fallback. Corrupt or missing checkpoints degrade to nil (cold start).
func (svc *Service) loadSnapshot() *indicator.EngineSnapshot {
	if data, err := svc.redisReader.ReadLatestSnapshotJSON(); err != nil {
		log.Printf("[live] redis checkpoint read error: %v", err)
	} else if snap := decodeSnapshot("redis", data); snap != nil {
		return snap
	}
	if svc.sqlReader == nil {
		return nil
	}
	if data, err := svc.sqlReader.ReadLatestSnapshotJSON(); err != nil {
		log.Printf("[live] sqlite checkpoint read error: %v", err)
	} else if snap := decodeSnapshot("sqlite", data); snap != nil {
		log.Println("[live] restored checkpoint from sqlite (redis had none)")
		return snap
	}
	return nil
}

func decodeSnapshot(origin string, data []byte) *indicator.EngineSnapshot {
	if len(data) == 0 {
		return nil
	}
	var snap indicator.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[live] discarding corrupt %s checkpoint: %v", origin, err)
		return nil
	}
	return &snap
}

// replayDelta re-reads the bar streams from the checkpoint position so the
// engine catches up on bars written while the service was down. Only the
// redis source keeps stream positions; the other sources re-derive state
// from the archive backfill alone. Delta bars warm state only, stale
// signals are not re-fired.
func (svc *Service) replayDelta(ctx context.Context, snap *indicator.EngineSnapshot) {
	if svc.cfg.Mode != config.LiveModeRedis || snap == nil || snap.StreamID == "" {
		return
	}
	log.Printf("[live] replaying delta from stream ID %s", snap.StreamID)

	ch := make(chan model.Kline, 5000)
	go func() {
		defer close(ch)
		for _, stream := range svc.streams {
			if _, err := svc.redisReader.ReplayFromID(ctx, stream, snap.StreamID, ch); err != nil {
				log.Printf("[live] delta replay error on %s: %v", stream, err)
			}
		}
	}()

	count := 0
	for k := range ch {
		if !k.Closed {
			continue
		}
		vals := svc.engine.Process(k)
		if len(vals) > 0 {
			svc.publishValues(ctx, vals)
		}
		count++
	}
	if count > 0 {
		log.Printf("[live] ✅ replayed %d delta bars", count)
	}
}
