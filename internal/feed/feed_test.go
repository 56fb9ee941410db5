package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
)

func klineFrame(sym, iv string, openMs int64, closePx string, closed bool) string {
	return fmt.Sprintf(
		`{"stream":"%s@kline_%s","data":{"e":"kline","E":%d,"s":"%s","k":{"t":%d,"T":%d,"s":"%s","i":"%s","o":"100.1","c":"%s","h":"101.2","l":"99.3","v":"12.34","x":%t}}}`,
		strings.ToLower(sym), iv, openMs+1500, sym, openMs, openMs+59999, sym, iv, closePx, closed)
}

// wsServer serves a fixed frame script to every connection, then hangs up.
type wsServer struct {
	mu       sync.Mutex
	connects int
	frames   []string
}

func (s *wsServer) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func newWSServer(t *testing.T, frames []string) (*wsServer, string) {
	t.Helper()
	s := &wsServer{frames: frames}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.connects++
		s.mu.Unlock()
		for _, f := range s.frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		conn.Close()
	}))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestIngest(t *testing.T, wsURL string, closedOnly bool) *Ingest {
	t.Helper()
	ing, err := New(Config{
		BaseURL:           wsURL,
		Symbols:           []string{"BTCUSDT"},
		Intervals:         []model.Interval{model.Interval1m},
		ClosedOnly:        closedOnly,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ing
}

func TestStreamPath_ComposesPairs(t *testing.T) {
	got := streamPath([]string{"BTCUSDT", "ETHUSDT"}, []model.Interval{model.Interval1m, model.Interval1h})
	want := "/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m/btcusdt@kline_1h/ethusdt@kline_1h"
	if got != want {
		t.Errorf("streamPath = %q, want %q", got, want)
	}
}

func TestNew_RequiresStreams(t *testing.T) {
	if _, err := New(Config{Symbols: []string{"BTCUSDT"}}); err == nil {
		t.Error("expected error with no intervals")
	}
	if _, err := New(Config{Intervals: []model.Interval{model.Interval1m}}); err == nil {
		t.Error("expected error with no symbols")
	}
}

func TestParseStreamMessage(t *testing.T) {
	t.Run("combined closed bar", func(t *testing.T) {
		k, err := parseStreamMessage([]byte(klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.5", true)))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if k.Symbol != "BTCUSDT" || k.Interval != model.Interval1m {
			t.Errorf("key = %s:%s, want BTCUSDT:1m", k.Symbol, k.Interval)
		}
		if k.Time != 1_700_000_000 {
			t.Errorf("Time = %d, want 1700000000 (seconds)", k.Time)
		}
		if k.Open != 100.1 || k.High != 101.2 || k.Low != 99.3 || k.Close != 100.5 || k.Volume != 12.34 {
			t.Errorf("OHLCV = %v %v %v %v %v", k.Open, k.High, k.Low, k.Close, k.Volume)
		}
		if !k.Closed {
			t.Error("Closed = false, want true")
		}
	})

	t.Run("forming bar", func(t *testing.T) {
		k, err := parseStreamMessage([]byte(klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.5", false)))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if k.Closed {
			t.Error("Closed = true, want false")
		}
	})

	t.Run("bare event without envelope", func(t *testing.T) {
		raw := `{"e":"kline","E":1,"s":"ETHUSDT","k":{"t":60000,"s":"ETHUSDT","i":"5m","o":"1","c":"2","h":"3","l":"0.5","v":"9","x":true}}`
		k, err := parseStreamMessage([]byte(raw))
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if k.Symbol != "ETHUSDT" || k.Interval != model.Interval5m || k.Time != 60 {
			t.Errorf("got %s:%s t=%d", k.Symbol, k.Interval, k.Time)
		}
	})

	t.Run("non-kline event", func(t *testing.T) {
		if _, err := parseStreamMessage([]byte(`{"e":"depthUpdate","s":"BTCUSDT"}`)); err == nil {
			t.Error("expected error for non-kline event")
		}
	})

	t.Run("bad price", func(t *testing.T) {
		raw := `{"e":"kline","s":"BTCUSDT","k":{"t":60000,"s":"BTCUSDT","i":"1m","o":"abc","c":"2","h":"3","l":"1","v":"9","x":true}}`
		if _, err := parseStreamMessage([]byte(raw)); err == nil {
			t.Error("expected error for non-numeric open")
		}
	})
}

func TestIngest_StreamsAndReconnects(t *testing.T) {
	frames := []string{
		klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.5", false),
		klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.6", true),
		klineFrame("BTCUSDT", "1m", 1_700_000_060_000, "100.7", true),
	}
	srv, wsURL := newWSServer(t, frames)

	ing := newTestIngest(t, wsURL, false)
	var reconnects int32
	ing.OnReconnect = func() { atomic.AddInt32(&reconnects, 1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Kline, 16)

	errCh := make(chan error, 1)
	go func() { errCh <- ing.Start(ctx, out) }()

	// Two connections' worth of closed bars proves the reconnect delivered.
	var closed []model.Kline
	deadline := time.After(3 * time.Second)
	for len(closed) < 4 {
		select {
		case k := <-out:
			if k.Closed {
				closed = append(closed, k)
			}
		case <-deadline:
			t.Fatalf("timed out with %d closed bars", len(closed))
		}
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Errorf("Start returned %v, want nil on cancel", err)
	}
	if srv.connectCount() < 2 {
		t.Errorf("connects = %d, want >= 2", srv.connectCount())
	}
	if atomic.LoadInt32(&reconnects) < 1 {
		t.Error("OnReconnect never fired")
	}
	if closed[0].Close != 100.6 || closed[1].Close != 100.7 {
		t.Errorf("first connection closes = %v, %v", closed[0].Close, closed[1].Close)
	}
}

func TestIngest_ClosedOnlyFilters(t *testing.T) {
	frames := []string{
		klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.5", false),
		klineFrame("BTCUSDT", "1m", 1_700_000_000_000, "100.6", true),
	}
	_, wsURL := newWSServer(t, frames)

	ing := newTestIngest(t, wsURL, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Kline, 16)
	go ing.Start(ctx, out)

	select {
	case k := <-out:
		if !k.Closed {
			t.Errorf("got forming bar close=%v through ClosedOnly feed", k.Close)
		}
		if k.Close != 100.6 {
			t.Errorf("Close = %v, want 100.6", k.Close)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no bar received")
	}
}
