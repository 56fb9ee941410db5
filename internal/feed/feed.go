// Package feed provides a WebSocket ingest client for Binance combined kline
// streams and pushes the events into the live pipeline as model.Kline values.
//
// One connection multiplexes every configured symbol x interval pair via the
// combined-stream endpoint:
//
//	wss://stream.binance.com:9443/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m
//
// Each event carries the forming bar for the current bucket; the closed flag
// ("x") flips to true exactly once, when the bucket rolls over. Forming
// updates flow through with Closed=false so consumers can drive previews, and
// the stores skip them on write.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
)

const defaultStreamURL = "wss://stream.binance.com:9443"

const (
	// pongWait is how long a connection may stay silent before it is
	// considered dead. Binance pings every ~20s on its own.
	pongWait = 90 * time.Second

	// pingPeriod is the client-side keepalive interval.
	pingPeriod = 30 * time.Second

	writeWait = 10 * time.Second
)

// Config holds configuration for the kline stream ingest.
type Config struct {
	// BaseURL of the stream endpoint, e.g. "wss://stream.binance.com:9443".
	// Defaults to the public Binance endpoint.
	BaseURL string

	Symbols   []string
	Intervals []model.Interval

	// ClosedOnly drops forming updates so out only carries completed bars.
	ClosedOnly bool

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultStreamURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to the combined kline stream and pushes model.Kline values
// into out.
type Ingest struct {
	cfg Config
	url string

	// Optional hook — called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error when no streams are configured
// or the composed URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if len(cfg.Symbols) == 0 || len(cfg.Intervals) == 0 {
		return nil, fmt.Errorf("feed: need at least one symbol and one interval")
	}
	u := strings.TrimRight(cfg.BaseURL, "/") + streamPath(cfg.Symbols, cfg.Intervals)
	if _, err := url.Parse(u); err != nil {
		return nil, fmt.Errorf("feed: bad stream url %q: %w", u, err)
	}
	return &Ingest{cfg: cfg, url: u}, nil
}

// streamPath composes the combined-stream path for every symbol x interval
// pair, e.g. "/stream?streams=btcusdt@kline_1m/ethusdt@kline_1m".
func streamPath(symbols []string, intervals []model.Interval) string {
	parts := make([]string, 0, len(symbols)*len(intervals))
	for _, iv := range intervals {
		for _, sym := range symbols {
			parts = append(parts, strings.ToLower(sym)+"@kline_"+string(iv))
		}
	}
	return "/stream?streams=" + strings.Join(parts, "/")
}

// Start connects to the stream and pushes klines into out. Blocks until ctx
// is cancelled. Reconnects automatically on disconnect with exponential
// backoff.
func (ing *Ingest) Start(ctx context.Context, out chan<- model.Kline) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, out)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx
// cancel.
func (ing *Ingest) runOnce(ctx context.Context, out chan<- model.Kline) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected: %d streams on %s", len(ing.cfg.Symbols)*len(ing.cfg.Intervals), ing.cfg.BaseURL)

	done := make(chan struct{})
	defer close(done)

	// Context watcher — closes the connection so ReadMessage unblocks.
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(writeWait))
		conn.Close()
	}()

	// Keepalive pings. WriteControl is safe alongside the read loop.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		k, err := parseStreamMessage(raw)
		if err != nil {
			log.Printf("[feed] parse error: %v (raw: %.200s)", err, raw)
			continue
		}
		if ing.cfg.ClosedOnly && !k.Closed {
			continue
		}

		if k.Closed {
			select {
			case out <- k:
			case <-ctx.Done():
				return nil
			}
		} else {
			select {
			case out <- k:
			default:
				// A forming update is superseded by the next event;
				// closed bars above never take this path.
			}
		}
	}
}

// combinedEnvelope is the wrapper the combined-stream endpoint puts around
// every event.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent mirrors the exchange kline payload. Prices arrive as strings.
type klineEvent struct {
	Type   string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime int64  `json:"t"`
		Symbol   string `json:"s"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		Close    string `json:"c"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// parseStreamMessage decodes a combined-stream frame (or a bare event from a
// single-stream endpoint) into a model.Kline.
func parseStreamMessage(raw []byte) (model.Kline, error) {
	var env combinedEnvelope
	data := raw
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		data = env.Data
	}

	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Kline{}, fmt.Errorf("decode kline event: %w", err)
	}
	if ev.Type != "kline" {
		return model.Kline{}, fmt.Errorf("unexpected event type %q", ev.Type)
	}

	symbol := ev.Kline.Symbol
	if symbol == "" {
		symbol = ev.Symbol
	}
	if symbol == "" {
		return model.Kline{}, fmt.Errorf("kline event without symbol")
	}

	k := model.Kline{
		Symbol:   symbol,
		Interval: model.Interval(ev.Kline.Interval),
		Time:     ev.Kline.OpenTime / 1000,
		Closed:   ev.Kline.Closed,
	}

	var err error
	if k.Open, err = parsePrice("open", ev.Kline.Open); err != nil {
		return model.Kline{}, err
	}
	if k.High, err = parsePrice("high", ev.Kline.High); err != nil {
		return model.Kline{}, err
	}
	if k.Low, err = parsePrice("low", ev.Kline.Low); err != nil {
		return model.Kline{}, err
	}
	if k.Close, err = parsePrice("close", ev.Kline.Close); err != nil {
		return model.Kline{}, err
	}
	if k.Volume, err = parsePrice("volume", ev.Kline.Volume); err != nil {
		return model.Kline{}, err
	}
	return k, nil
}

func parsePrice(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return v, nil
}
