// Package resample provides an incremental interval resampler. It consumes
// closed bars at a source interval (typically 1m) and maintains forming bars
// for each configured target interval, updated in O(1) per bar per interval.
// When a bar arrives in a new bucket, the previous forming bar is finalized
// and emitted with Closed=true.
package resample

import (
	"context"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"
)

// bucketState holds the forming bar for one (symbol, interval) pair.
type bucketState struct {
	bucket  int64 // bucket start = ts - ts%step (Unix seconds)
	kline   model.Kline
	started bool
}

// Resampler merges source bars into multiple target intervals. Designed to
// run in a single goroutine (single consumer); not goroutine-safe.
type Resampler struct {
	intervals []model.Interval
	steps     []int64

	// Per-interval per-symbol state: states[ivIdx][symbol].
	states []map[string]*bucketState

	// StaleTolerance rejects bars whose bucket is behind the current forming
	// bucket by more than this. Default 2 minutes. Set to 0 to disable.
	StaleTolerance time.Duration

	// Metrics hooks
	OnFinalized func(k model.Kline) // called on each finalized target bar (optional)
	OnStale     func()              // called when a stale bar is rejected (optional)
}

// New creates a resampler for the given target intervals.
func New(intervals []model.Interval) (*Resampler, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("resample: no target intervals")
	}
	steps := make([]int64, len(intervals))
	states := make([]map[string]*bucketState, len(intervals))
	for i, iv := range intervals {
		secs := iv.Seconds()
		if secs <= 0 {
			return nil, fmt.Errorf("resample: unknown interval %q", iv)
		}
		steps[i] = secs
		states[i] = make(map[string]*bucketState, 8)
	}
	return &Resampler{
		intervals:      intervals,
		steps:          steps,
		states:         states,
		StaleTolerance: 2 * time.Minute,
	}, nil
}

// Intervals returns the current list of target intervals.
func (r *Resampler) Intervals() []model.Interval {
	return r.intervals
}

// UpdateIntervals swaps the target interval set. Forming bars for removed
// intervals are finalized and emitted; states for persisting intervals carry
// over untouched.
func (r *Resampler) UpdateIntervals(intervals []model.Interval, out chan<- model.Kline) error {
	steps := make([]int64, len(intervals))
	for i, iv := range intervals {
		if iv.Seconds() <= 0 {
			return fmt.Errorf("resample: unknown interval %q", iv)
		}
		steps[i] = iv.Seconds()
	}

	keep := make(map[model.Interval]bool, len(intervals))
	for _, iv := range intervals {
		keep[iv] = true
	}
	for i, iv := range r.intervals {
		if !keep[iv] {
			for _, st := range r.states[i] {
				if st.started {
					st.kline.Closed = true
					r.emit(out, st.kline)
				}
			}
		}
	}

	old := make(map[model.Interval]map[string]*bucketState, len(r.intervals))
	for i, iv := range r.intervals {
		old[iv] = r.states[i]
	}

	r.intervals = intervals
	r.steps = steps
	r.states = make([]map[string]*bucketState, len(intervals))
	for i, iv := range intervals {
		if prev, ok := old[iv]; ok {
			r.states[i] = prev
		} else {
			r.states[i] = make(map[string]*bucketState, 8)
		}
	}
	return nil
}

// Run consumes source bars from in and sends target bars to out. Blocks
// until ctx is cancelled or in closes; forming bars are flushed on the way
// out.
func (r *Resampler) Run(ctx context.Context, in <-chan model.Kline, out chan<- model.Kline) {
	for {
		select {
		case <-ctx.Done():
			r.Flush(out)
			return
		case k, ok := <-in:
			if !ok {
				r.Flush(out)
				return
			}
			r.Process(k, out)
		}
	}
}

// Process handles a single source bar against all target intervals. This is
// the hot path — O(1) per interval. Forming source updates are ignored; only
// closed bars merge.
func (r *Resampler) Process(k model.Kline, out chan<- model.Kline) {
	if !k.Closed {
		return
	}

	for i, step := range r.steps {
		bucket := k.Time - (k.Time % step)

		st, exists := r.states[i][k.Symbol]

		// Reject bars whose bucket is behind the forming bucket by more than
		// the tolerance, so late arrivals cannot corrupt an advanced bucket.
		if r.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > r.StaleTolerance {
				if r.OnStale != nil {
					r.OnStale()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			// New bucket — finalize the forming bar
			st.kline.Closed = true
			r.emit(out, st.kline)
			if r.OnFinalized != nil {
				r.OnFinalized(st.kline)
			}
			exists = false
		}

		if !exists {
			st = &bucketState{
				bucket:  bucket,
				started: true,
				kline: model.Kline{
					Symbol:   k.Symbol,
					Interval: r.intervals[i],
					Time:     bucket,
					Open:     k.Open,
					High:     k.High,
					Low:      k.Low,
					Close:    k.Close,
					Volume:   k.Volume,
					Closed:   false,
				},
			}
			r.states[i][k.Symbol] = st
			r.emit(out, st.kline)
			continue
		}

		// Same bucket — merge OHLCV
		fk := &st.kline
		if k.High > fk.High {
			fk.High = k.High
		}
		if k.Low < fk.Low {
			fk.Low = k.Low
		}
		fk.Close = k.Close
		fk.Volume += k.Volume

		// Emit a forming snapshot so the preview path sees the in-progress
		// bar. Value copy: holding the struct after the next merge is safe.
		r.emit(out, *fk)
	}
}

// Flush finalizes and emits every forming bar, clearing all state.
func (r *Resampler) Flush(out chan<- model.Kline) {
	for i := range r.intervals {
		for sym, st := range r.states[i] {
			if st.started {
				st.kline.Closed = true
				r.emit(out, st.kline)
			}
			delete(r.states[i], sym)
		}
	}
}

// emit sends a bar to the output channel. Non-blocking to avoid deadlocks.
func (r *Resampler) emit(out chan<- model.Kline, k model.Kline) {
	select {
	case out <- k:
	default:
		log.Printf("[resample] out full, dropping %s %s bar ts=%d", k.Symbol, k.Interval, k.Time)
	}
}
