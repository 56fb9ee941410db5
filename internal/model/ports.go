package model

import (
	"context"
	"time"
)

// ── Ports ──
// Capability interfaces decoupling the pipeline and the live service from
// concrete sources and stores (REST, CSV, SQLite, Redis). Each implementation
// satisfies one or more of these.

// SeriesSource yields raw kline rows for one symbol, interval and time range.
type SeriesSource interface {
	// Fetch returns raw rows covering [start, end). A zero time means
	// unbounded on that side. Rows come back in source order, not normalized.
	Fetch(ctx context.Context, symbol string, interval Interval, start, end time.Time) ([]RawBar, error)
}

// KlineWriter persists stamped bars.
type KlineWriter interface {
	// Run reads klines from ch and writes them in batches.
	// Blocks until ctx is cancelled or ch is closed.
	Run(ctx context.Context, ch <-chan Kline)

	// WriteBatch writes a batch synchronously.
	WriteBatch(klines []Kline) error

	// Close flushes and releases underlying resources.
	Close() error
}

// KlineReader reads stored bars for backtests, backfill and replay.
type KlineReader interface {
	// ReadRange reads closed bars for symbol+interval with Time in
	// [fromTS, toTS]. toTS <= 0 means no upper bound.
	ReadRange(symbol string, interval Interval, fromTS, toTS int64) ([]Kline, error)

	// Close releases underlying resources.
	Close() error
}

// SignalPublisher publishes signal events and live indicator values.
type SignalPublisher interface {
	// PublishSignal appends ev to its stream and notifies subscribers.
	PublishSignal(ctx context.Context, ev SignalEvent) error

	// PublishValues writes a batch of indicator values in one round trip.
	PublishValues(ctx context.Context, vals []IndicatorValue) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte keeps stores ignorant of the indicator package types.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// StreamConsumer consumes stamped bars from a stream (e.g. Redis Streams).
type StreamConsumer interface {
	// ConsumeKlines reads bars via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeKlines(ctx context.Context, streams []string, out chan<- Kline) error

	// RecoverPending drains unACKed messages left by a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- Kline) error

	// EnsureConsumerGroup creates the consumer group on each stream.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ReplayFromID re-reads a stream starting after startID and returns the
	// last ID seen, for snapshot delta catch-up.
	ReplayFromID(ctx context.Context, stream, startID string, out chan<- Kline) (string, error)

	// Close releases underlying resources.
	Close() error
}
