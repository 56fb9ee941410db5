package sqlite

import (
	"signal-systemv1/internal/pipeline"
)

// RunSink archives each finished pipeline run in the runs table.
type RunSink struct {
	w *Writer
}

var _ pipeline.Sink = (*RunSink)(nil)

func NewRunSink(w *Writer) *RunSink { return &RunSink{w: w} }

func (s *RunSink) Name() string { return "sqlite-runs" }

func (s *RunSink) Write(res *pipeline.Result) error {
	return s.w.InsertRun(RunRecord{
		ID:        res.RunID,
		Symbol:    res.Symbol,
		Interval:  res.Interval,
		Rule:      res.Rule,
		Set:       res.Set,
		Counts:    res.Counts,
		ElapsedMs: res.Elapsed.Milliseconds(),
		CreatedAt: res.CreatedAt.Unix(),
	})
}
