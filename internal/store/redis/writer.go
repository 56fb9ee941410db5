package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"signal-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes bars, indicator values and signal events to Redis:
// XADD to a trimmed stream, SET of a latest-value key, PUBLISH for
// dashboard subscribers. Forming bars and preview values go out via
// PubSub only.
type Writer struct {
	client *goredis.Client
}

var _ model.SignalPublisher = (*Writer)(nil)

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// streamMaxLen keeps roughly three hours of entries per bar stream,
// floored so slow intervals still retain a useful history.
func streamMaxLen(iv model.Interval) int64 {
	secs := iv.Seconds()
	if secs == 0 {
		return 200
	}
	maxLen := 10800/secs + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// Run reads klines from ch and writes them to Redis.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Kline) {
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-ch:
			if !ok {
				return
			}
			w.writeKline(ctx, k)
		}
	}
}

// writeKline performs pipelined writes for one bar. Closed bars get the
// full XADD + SET + PUBLISH treatment; forming updates are PubSub only so
// streams carry nothing but confirmed history.
func (w *Writer) writeKline(ctx context.Context, k model.Kline) {
	jsonData := string(k.JSON())
	streamKey := k.StreamKey()
	pubsubCh := "pub:" + streamKey

	if !k.Closed {
		w.client.Publish(ctx, pubsubCh, jsonData)
		return
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen(k.Interval),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	latestKey := "bars:" + string(k.Interval) + ":latest:" + k.Symbol
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] bar pipeline error for %s: %v", k.Key(), err)
	}
}

// PublishValues writes a batch of indicator values in a single Redis
// pipeline: XADD + SET + PUBLISH per confirmed value, PUBLISH only for
// previews, one network roundtrip for the lot.
// Optimized: []byte→string zero-copy, no fmt.Sprintf on the hot path.
func (w *Writer) PublishValues(ctx context.Context, vals []model.IndicatorValue) error {
	if len(vals) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range vals {
		v := &vals[i]
		if !v.Defined && !v.Preview {
			continue // warm-up values carry nothing worth archiving
		}

		jsonBytes := v.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
		streamKey := v.StreamKey()
		pubsubCh := "pub:" + streamKey

		if v.Preview {
			pipe.Publish(ctx, pubsubCh, jsonData)
			continue
		}

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: streamMaxLen(v.Interval),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		latestKey := "ind:" + v.Column + ":" + string(v.Interval) + ":latest:" + v.Symbol
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis value batch (%d values): %w", len(vals), err)
	}
	return nil
}

// PublishSignal appends a signal event to its stream, refreshes the latest
// key and notifies subscribers.
func (w *Writer) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	jsonData := string(ev.JSON())
	streamKey := ev.StreamKey()

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	latestKey := "signals:" + string(ev.Interval) + ":latest:" + ev.Symbol
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, "pub:"+streamKey, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis signal %s: %w", ev.Key(), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
