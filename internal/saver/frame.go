package saver

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"strconv"
	"time"

	"signal-systemv1/internal/frame"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/pipeline"
)

// WriteFrameCSV renders a computed frame as one CSV table: the bar columns,
// then the indicator columns in computation order, then the signal columns.
// Time is in epoch seconds, undefined cells are empty, booleans render
// true/false.
func WriteFrameCSV(fr *frame.Frame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	names := fr.Columns()
	boolNames := fr.BoolColumns()

	w := csv.NewWriter(f)
	header := append([]string{"time", "open", "high", "low", "close"}, names...)
	header = append(header, boolNames...)
	if err := w.Write(header); err != nil {
		return err
	}

	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i], _ = fr.Column(n)
	}
	bools := make([][]bool, len(boolNames))
	for i, n := range boolNames {
		bools[i], _ = fr.Bool(n)
	}

	rec := make([]string, 0, len(header))
	for i, b := range fr.Bars() {
		rec = rec[:0]
		rec = append(rec,
			strconv.FormatInt(b.Time, 10),
			floatCell(b.Open),
			floatCell(b.High),
			floatCell(b.Low),
			floatCell(b.Close),
		)
		for _, c := range cols {
			rec = append(rec, floatCell(c[i]))
		}
		for _, bc := range bools {
			rec = append(rec, strconv.FormatBool(bc[i]))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// resultDoc is the JSON export shape: run metadata, the outcome tally, and
// the frame as a columns array plus row arrays in the same order as the CSV.
type resultDoc struct {
	RunID     string              `json:"run_id"`
	Symbol    string              `json:"symbol"`
	Interval  model.Interval      `json:"interval"`
	Rule      string              `json:"rule"`
	Set       string              `json:"set"`
	CreatedAt time.Time           `json:"created_at"`
	Outcome   model.OutcomeCounts `json:"outcome"`
	Columns   []string            `json:"columns"`
	Rows      [][]any             `json:"rows"`
}

// WriteResultJSON renders a finished run as one JSON document. Non-finite
// cells become null: the export is for outside consumers, not for restoring
// state.
func WriteResultJSON(res *pipeline.Result, path string) error {
	header, rows := frameTable(res.Frame)
	doc := resultDoc{
		RunID:     res.RunID,
		Symbol:    res.Symbol,
		Interval:  res.Interval,
		Rule:      res.Rule,
		Set:       res.Set,
		CreatedAt: res.CreatedAt,
		Outcome:   res.Counts,
		Columns:   header,
		Rows:      rows,
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func frameTable(fr *frame.Frame) ([]string, [][]any) {
	names := fr.Columns()
	boolNames := fr.BoolColumns()

	header := append([]string{"time", "open", "high", "low", "close"}, names...)
	header = append(header, boolNames...)

	cols := make([][]float64, len(names))
	for i, n := range names {
		cols[i], _ = fr.Column(n)
	}
	bools := make([][]bool, len(boolNames))
	for i, n := range boolNames {
		bools[i], _ = fr.Bool(n)
	}

	bars := fr.Bars()
	rows := make([][]any, len(bars))
	for i, b := range bars {
		row := make([]any, 0, len(header))
		row = append(row, b.Time, jsonCell(b.Open), jsonCell(b.High), jsonCell(b.Low), jsonCell(b.Close))
		for _, c := range cols {
			row = append(row, jsonCell(c[i]))
		}
		for _, bc := range bools {
			row = append(row, bc[i])
		}
		rows[i] = row
	}
	return header, rows
}

func jsonCell(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// ─── pipeline sinks ──────────────────────────────────────────────────────────

// FrameCSVSink exports each run's frame to a fixed CSV path.
type FrameCSVSink struct {
	Path string
}

var _ pipeline.Sink = (*FrameCSVSink)(nil)

func NewFrameCSVSink(path string) *FrameCSVSink { return &FrameCSVSink{Path: path} }

func (s *FrameCSVSink) Name() string { return "frame-csv" }

func (s *FrameCSVSink) Write(res *pipeline.Result) error {
	return WriteFrameCSV(res.Frame, s.Path)
}

// ResultJSONSink exports each run as a JSON document to a fixed path.
type ResultJSONSink struct {
	Path string
}

var _ pipeline.Sink = (*ResultJSONSink)(nil)

func NewResultJSONSink(path string) *ResultJSONSink { return &ResultJSONSink{Path: path} }

func (s *ResultJSONSink) Name() string { return "result-json" }

func (s *ResultJSONSink) Write(res *pipeline.Result) error {
	return WriteResultJSON(res, s.Path)
}
