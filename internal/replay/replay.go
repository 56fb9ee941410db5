// Package replay provides a kline replayer that reads stored bars from the
// archive and emits them at configurable speed, so the live service can run
// against historical data without exchange access.
package replay

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"
)

// Replayer reads historical klines through a model.KlineReader and replays
// them at a configurable speed multiplier.
type Replayer struct {
	reader model.KlineReader
}

// New creates a Replayer backed by a kline reader.
func New(reader model.KlineReader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all stored bars for the given symbols and intervals, emitting
// them into out in timestamp order.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast
// as possible. fromTS filters bars to those at or after this Unix timestamp
// (0 = all).
func (r *Replayer) Run(ctx context.Context, symbols []string, intervals []model.Interval, fromTS int64, speed float64, out chan<- model.Kline) error {
	// Collect all bars across pairs; they interleave across symbols and
	// intervals, so sort afterwards.
	var all []model.Kline
	for _, sym := range symbols {
		for _, iv := range intervals {
			kls, err := r.reader.ReadRange(sym, iv, fromTS, 0)
			if err != nil {
				return fmt.Errorf("replay %s %s: %w", sym, iv, err)
			}
			all = append(all, kls...)
		}
	}

	if len(all) == 0 {
		log.Println("[replay] no bars found in archive")
		return nil
	}

	sortKlines(all)

	log.Printf("[replay] loaded %d bars across %d symbols x %d intervals, speed=%.1fx",
		len(all), len(symbols), len(intervals), speed)

	var prevTS int64
	emitted := 0

	for _, k := range all {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between bars
		if speed > 0 && prevTS > 0 {
			gap := time.Duration(k.Time-prevTS) * time.Second
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid very long waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = k.Time

		// Stored bars are complete by definition
		k.Closed = true
		select {
		case out <- k:
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d bars", emitted)
			return ctx.Err()
		}
		emitted++
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return nil
}

// sortKlines sorts bars by timestamp (insertion sort — stable and fine for
// replay sizes).
func sortKlines(kls []model.Kline) {
	for i := 1; i < len(kls); i++ {
		for j := i; j > 0 && kls[j].Time < kls[j-1].Time; j-- {
			kls[j], kls[j-1] = kls[j-1], kls[j]
		}
	}
}
