package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

const (
	// binancePageLimit is the REST API per-request kline cap.
	binancePageLimit = 1000

	defaultBinanceURL = "https://api.binance.com"
)

// Binance fetches klines from the Binance spot REST API. The /api/v3/klines
// endpoint is public, so no API key is needed.
type Binance struct {
	BaseURL string
	Client  *http.Client
}

// NewBinance creates a fetcher against baseURL, defaulting to the production
// API when empty. Tests point BaseURL at an httptest server.
func NewBinance(baseURL string) *Binance {
	if baseURL == "" {
		baseURL = defaultBinanceURL
	}
	return &Binance{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var _ model.SeriesSource = (*Binance)(nil)

// Fetch pages through /api/v3/klines in 1000-bar requests, advancing
// startTime one millisecond past the last open time until the range is
// covered. Rows come back exactly as the wire carried them: twelve fields,
// prices as strings.
func (b *Binance) Fetch(ctx context.Context, symbol string, interval model.Interval, start, end time.Time) ([]model.RawBar, error) {
	var (
		out    []model.RawBar
		cursor int64 = -1
		endMs  int64 = -1
	)
	if !start.IsZero() {
		cursor = start.UnixMilli()
	}
	if !end.IsZero() {
		// endTime filters open times inclusively; the range here is [start, end).
		endMs = end.UnixMilli() - 1
	}

	for {
		page, err := b.fetchPage(ctx, symbol, interval, cursor, endMs)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < binancePageLimit {
			return out, nil
		}
		last, err := strconv.ParseInt(page[len(page)-1][0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("binance: bad open time %q: %w", page[len(page)-1][0], err)
		}
		if last+1 <= cursor {
			return nil, fmt.Errorf("binance: page did not advance past %d", cursor)
		}
		cursor = last + 1
		if endMs >= 0 && cursor > endMs {
			return out, nil
		}
	}
}

func (b *Binance) fetchPage(ctx context.Context, symbol string, interval model.Interval, startMs, endMs int64) ([]model.RawBar, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", string(interval))
	q.Set("limit", strconv.Itoa(binancePageLimit))
	if startMs >= 0 {
		q.Set("startTime", strconv.FormatInt(startMs, 10))
	}
	if endMs >= 0 {
		q.Set("endTime", strconv.FormatInt(endMs, 10))
	}
	endpoint := b.BaseURL + "/api/v3/klines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch klines: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Klines arrive as 12-element arrays mixing numbers and strings:
	// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
	// UseNumber keeps the numeric fields as their wire text.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	out := make([]model.RawBar, 0, len(rows))
	for _, r := range rows {
		raw := make(model.RawBar, 0, len(r))
		for _, f := range r {
			switch v := f.(type) {
			case string:
				raw = append(raw, v)
			case json.Number:
				raw = append(raw, v.String())
			default:
				raw = append(raw, fmt.Sprint(v))
			}
		}
		out = append(out, raw)
	}
	return out, nil
}
