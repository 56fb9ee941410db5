package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"signal-systemv1/internal/model"
)

// pendingWrite is one write captured while the circuit was open.
type pendingWrite struct {
	Kind string // "bar", "signal", "values"
	Data []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker. While the
// circuit is open, writes are buffered locally and replayed when it closes
// again, so a Redis outage delays publication instead of losing it.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

var _ model.SignalPublisher = (*BufferedWriter)(nil)

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteKline writes a bar through the circuit breaker. If the circuit is
// open, the bar is buffered locally.
func (bw *BufferedWriter) WriteKline(k model.Kline) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writeKline(bw.ctx, k)
		return nil // writeKline logs errors internally
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("bar", k)
		return nil // buffered, not lost
	}
	return err
}

// PublishSignal publishes a signal event through the circuit breaker,
// buffering it while the circuit is open.
func (bw *BufferedWriter) PublishSignal(_ context.Context, ev model.SignalEvent) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.PublishSignal(bw.ctx, ev)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("signal", ev)
		return nil
	}
	return err
}

// PublishValues publishes an indicator value batch through the circuit
// breaker, buffering the whole batch while the circuit is open.
func (bw *BufferedWriter) PublishValues(_ context.Context, vals []model.IndicatorValue) error {
	if len(vals) == 0 {
		return nil
	}
	err := bw.cb.Execute(func() error {
		return bw.writer.PublishValues(bw.ctx, vals)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("values", vals)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{Kind: kind, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.Kind {
		case "bar":
			var k model.Kline
			if json.Unmarshal(pw.Data, &k) == nil {
				bw.writer.writeKline(bw.ctx, k)
			}
		case "signal":
			var ev model.SignalEvent
			if json.Unmarshal(pw.Data, &ev) == nil {
				bw.writer.PublishSignal(bw.ctx, ev)
			}
		case "values":
			var vals []model.IndicatorValue
			if json.Unmarshal(pw.Data, &vals) == nil {
				bw.writer.PublishValues(bw.ctx, vals)
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

// Close closes the underlying writer.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
