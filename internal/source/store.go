package source

import (
	"context"
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

// Store re-serves bars from a KlineReader (the SQLite archive) as raw rows,
// so a backtest against stored data walks the same normalize path as a
// network fetch.
type Store struct {
	Reader model.KlineReader
}

func NewStore(r model.KlineReader) *Store { return &Store{Reader: r} }

var _ model.SeriesSource = (*Store)(nil)

func (s *Store) Fetch(_ context.Context, symbol string, interval model.Interval, start, end time.Time) ([]model.RawBar, error) {
	var fromTS, toTS int64
	if !start.IsZero() {
		fromTS = start.Unix()
	}
	if !end.IsZero() {
		// ReadRange bounds inclusively; the range here is [start, end).
		toTS = end.Unix() - 1
	}
	kls, err := s.Reader.ReadRange(symbol, interval, fromTS, toTS)
	if err != nil {
		return nil, fmt.Errorf("read stored bars: %w", err)
	}
	out := make([]model.RawBar, len(kls))
	for i, k := range kls {
		out[i] = rawFromKline(k)
	}
	return out, nil
}
