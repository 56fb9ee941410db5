package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-systemv1/internal/model"
)

// deadWriter returns a Writer whose client points at a closed port, so any
// network call fails fast. The buffering tests never reach the network while
// the circuit is open; the flush path hits it and ignores the errors.
func deadWriter() *Writer {
	return &Writer{client: goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})}
}

func TestBarStreams_ComposesKeys(t *testing.T) {
	got := BarStreams(
		[]string{"BTCUSDT", "ETHUSDT"},
		[]model.Interval{model.Interval1m, model.Interval1h},
	)
	want := []string{
		"bars:1m:BTCUSDT",
		"bars:1m:ETHUSDT",
		"bars:1h:BTCUSDT",
		"bars:1h:ETHUSDT",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d streams, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stream %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStreamMaxLen_ScalesWithInterval(t *testing.T) {
	cases := []struct {
		interval model.Interval
		want     int64
	}{
		{model.Interval1m, 280},  // 10800/60 + 100
		{model.Interval5m, 200},  // floor of 136
		{model.Interval1h, 200},  // floor of 103
		{model.Interval(""), 200}, // unknown interval gets the floor
	}
	for _, c := range cases {
		if got := streamMaxLen(c.interval); got != c.want {
			t.Errorf("streamMaxLen(%q) = %d, want %d", c.interval, got, c.want)
		}
	}
}

func TestBufferedWriter_BuffersWhileCircuitOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour) // stays open for the whole test
	bw := NewBufferedWriter(context.Background(), deadWriter(), cb, 100)
	defer bw.Close()

	buffered := 0
	bw.OnBuffer = func() { buffered++ }

	cb.Execute(func() error { return errors.New("fail") })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", cb.CurrentState())
	}

	k := model.Kline{Symbol: "BTCUSDT", Interval: model.Interval1m, Time: 1_700_000_000, Close: 100.5, Closed: true}
	if err := bw.WriteKline(k); err != nil {
		t.Fatalf("WriteKline while open must buffer, not fail: %v", err)
	}

	ev := model.SignalEvent{ID: "sig-1", Symbol: "BTCUSDT", Interval: model.Interval1m, Rule: "mean_reversion", Side: model.SideLong, Kind: model.SignalEntry}
	if err := bw.PublishSignal(context.Background(), ev); err != nil {
		t.Fatalf("PublishSignal while open must buffer, not fail: %v", err)
	}

	vals := []model.IndicatorValue{{Column: "RSI", Symbol: "BTCUSDT", Interval: model.Interval1m, Time: 1_700_000_000, Value: 28.4, Defined: true}}
	if err := bw.PublishValues(context.Background(), vals); err != nil {
		t.Fatalf("PublishValues while open must buffer, not fail: %v", err)
	}

	if bw.PendingCount() != 3 {
		t.Errorf("PendingCount = %d, want 3", bw.PendingCount())
	}
	if buffered != 3 {
		t.Errorf("OnBuffer fired %d times, want 3", buffered)
	}
}

func TestBufferedWriter_FlushesWhenCircuitCloses(t *testing.T) {
	cb := NewCircuitBreaker(1, 40*time.Millisecond)
	bw := NewBufferedWriter(context.Background(), deadWriter(), cb, 100)
	defer bw.Close()

	flushedCh := make(chan int, 1)
	bw.OnFlush = func(n int) { flushedCh <- n }

	cb.Execute(func() error { return errors.New("fail") })
	bw.WriteKline(model.Kline{Symbol: "BTCUSDT", Interval: model.Interval1m, Time: 1_700_000_000, Closed: true})
	bw.PublishSignal(context.Background(), model.SignalEvent{ID: "sig-1", Symbol: "BTCUSDT", Interval: model.Interval1m})
	if bw.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", bw.PendingCount())
	}

	time.Sleep(50 * time.Millisecond)

	// Successful probe closes the circuit and kicks off the async flush.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}

	select {
	case n := <-flushedCh:
		if n != 2 {
			t.Errorf("flushed %d writes, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not run after the circuit closed")
	}
	if bw.PendingCount() != 0 {
		t.Errorf("PendingCount after flush = %d, want 0", bw.PendingCount())
	}
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Hour)
	bw := NewBufferedWriter(context.Background(), deadWriter(), cb, 2)
	defer bw.Close()

	cb.Execute(func() error { return errors.New("fail") })

	for ts := int64(1); ts <= 3; ts++ {
		bw.WriteKline(model.Kline{Symbol: "BTCUSDT", Interval: model.Interval1m, Time: ts, Closed: true})
	}

	if bw.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", bw.PendingCount())
	}

	// The survivors are the two most recent bars.
	bw.mu.Lock()
	defer bw.mu.Unlock()
	for i, wantTS := range []int64{2, 3} {
		var k model.Kline
		if err := json.Unmarshal(bw.buffer[i].Data, &k); err != nil {
			t.Fatalf("unmarshal buffered bar %d: %v", i, err)
		}
		if k.Time != wantTS {
			t.Errorf("buffer[%d].Time = %d, want %d", i, k.Time, wantTS)
		}
	}
}
