package live

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"
)

// snapshotLoop checkpoints engine state on a fixed cadence.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotEverySec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.checkpoint()
		}
	}
}

// checkpoint saves the engine state to Redis and SQLite. Either store
// failing is logged and tolerated; the next tick retries.
func (svc *Service) checkpoint() {
	svc.mu.Lock()
	snap := svc.engine.Snapshot(checkpointStreamID())
	svc.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[live] checkpoint encode error: %v", err)
		return
	}
	if err := svc.redisReader.SaveSnapshotJSON(data); err != nil {
		log.Printf("[live] redis checkpoint write error: %v", err)
	}
	if svc.sqlWriter != nil {
		if err := svc.sqlWriter.SaveSnapshotJSON(data); err != nil {
			log.Printf("[live] sqlite checkpoint write error: %v", err)
		}
	}
	svc.prom.SnapshotsTotal.Inc()
	log.Printf("[live] ✅ checkpoint saved (%d keys)", len(snap.Keys))
}

// checkpointStreamID returns a time-based stream position marker: entry
// IDs are "<ms>-<seq>", so replaying from "<now ms>-0" skips everything
// already processed.
func checkpointStreamID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
