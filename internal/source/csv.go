package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

// CSV reads raw rows from a local file: one bar per line, first six fields
// time-in-ms,open,high,low,close,volume, header line optional. The file is
// for whatever symbol and interval it was exported with, so Fetch ignores
// those arguments and filters on the time range only.
type CSV struct {
	Path string
}

func NewCSV(path string) *CSV { return &CSV{Path: path} }

var _ model.SeriesSource = (*CSV)(nil)

func (c *CSV) Fetch(ctx context.Context, _ string, _ model.Interval, start, end time.Time) ([]model.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // exports disagree on trailing columns

	startMs := int64(math.MinInt64)
	endMs := int64(math.MaxInt64)
	if !start.IsZero() {
		startMs = start.UnixMilli()
	}
	if !end.IsZero() {
		endMs = end.UnixMilli()
	}

	var out []model.RawBar
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		ms, ok := parseMillis(strings.TrimSpace(rec[0]))
		if !ok {
			if i == 0 {
				continue // header line
			}
			// Pass the row through and let the normalizer report it.
			out = append(out, model.RawBar(rec))
			continue
		}
		if ms < startMs || ms >= endMs {
			continue
		}
		out = append(out, model.RawBar(rec))
	}
}
