package source

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"signal-systemv1/internal/model"
)

// Synthetic generates a random-walk series. The walk is fully determined by
// Seed and the requested range: same arguments, same rows. With an open-ended
// range it anchors on the current time, so tests should pass explicit bounds.
type Synthetic struct {
	Seed    int64
	Start   float64 // first close, default 100
	StepPct float64 // max per-bar move in percent, default 1.0
	N       int     // bar count when the range is open-ended, default 500
}

var _ model.SeriesSource = (*Synthetic)(nil)

func (s *Synthetic) Fetch(_ context.Context, _ string, interval model.Interval, start, end time.Time) ([]model.RawBar, error) {
	step := interval.Seconds()
	if step == 0 {
		return nil, fmt.Errorf("synthetic: unknown interval %q", interval)
	}
	price := s.Start
	if price <= 0 {
		price = 100
	}
	stepPct := s.StepPct
	if stepPct <= 0 {
		stepPct = 1.0
	}
	n := s.N
	if n <= 0 {
		n = 500
	}

	// Resolve bar times: bucket-aligned open times covering [start, end).
	var first, last int64
	switch {
	case !start.IsZero() && !end.IsZero():
		first = alignUp(start.Unix(), step)
		last = end.Unix()
	case !start.IsZero():
		first = alignUp(start.Unix(), step)
		last = first + int64(n)*step
	case !end.IsZero():
		last = end.Unix()
		first = alignUp(last-int64(n)*step, step)
	default:
		last = time.Now().Unix()
		first = alignUp(last-int64(n)*step, step)
	}

	rng := rand.New(rand.NewSource(s.Seed))
	var out []model.RawBar
	for t := first; t < last; t += step {
		open := price
		pct := (rng.Float64()*2 - 1) * stepPct / 100
		price = open * (1 + pct)
		high := math.Max(open, price) * (1 + rng.Float64()*stepPct/200)
		low := math.Min(open, price) * (1 - rng.Float64()*stepPct/200)
		vol := 1 + rng.Float64()*100
		out = append(out, model.RawBar{
			strconv.FormatInt(t*1000, 10),
			formatPrice(open),
			formatPrice(high),
			formatPrice(low),
			formatPrice(price),
			formatPrice(vol),
		})
	}
	return out, nil
}

// alignUp rounds ts up to the next step boundary.
func alignUp(ts, step int64) int64 {
	if r := ts % step; r != 0 {
		ts += step - r
	}
	return ts
}
