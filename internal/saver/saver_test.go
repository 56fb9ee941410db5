package saver

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"signal-systemv1/internal/frame"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/normalize"
	"signal-systemv1/internal/pipeline"
	"signal-systemv1/internal/source"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func testKlines() []model.Kline {
	return []model.Kline{
		{Symbol: "BTCUSDT", Interval: model.Interval1m, Time: 1_700_000_000, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12.5, Closed: true},
		{Symbol: "BTCUSDT", Interval: model.Interval1m, Time: 1_700_000_060, Open: 100.5, High: 102, Low: 100, Close: 101.25, Volume: 8, Closed: true},
	}
}

func testFrame(t *testing.T) *frame.Frame {
	t.Helper()
	fr := frame.New([]model.Bar{
		{Time: 1_700_000_000, Open: 100, High: 101, Low: 99, Close: 100},
		{Time: 1_700_000_060, Open: 100, High: 101, Low: 99, Close: 100.5},
	})
	if err := fr.AddColumn("SMA", false, []float64{math.NaN(), 100.5}); err != nil {
		t.Fatalf("AddColumn: %v", err)
	}
	if err := fr.AddBool("Long_Entry", []bool{false, true}); err != nil {
		t.Fatalf("AddBool: %v", err)
	}
	return fr
}

// ─── factory ─────────────────────────────────────────────────────────────────

func TestNew_Factory(t *testing.T) {
	for _, format := range []string{"csv", "CSV", " parquet ", "json"} {
		s, err := New(format)
		if err != nil {
			t.Errorf("New(%q): %v", format, err)
			continue
		}
		if s.Extension() == "" {
			t.Errorf("New(%q): empty extension", format)
		}
	}

	if _, err := New("xml"); err == nil {
		t.Error("New(xml) should fail")
	}
}

// ─── bar savers ──────────────────────────────────────────────────────────────

func TestCSVSaver_RoundTripsThroughCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	kls := testKlines()
	kls = append(kls, model.Kline{
		Symbol: "BTCUSDT", Interval: model.Interval1m,
		Time: 1_700_000_120, Open: 101.25, High: 101.5, Low: 101, Close: 101.5,
		Volume: math.NaN(), Closed: true,
	})

	if err := (CSVSaver{}).Save(kls, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rows, err := source.NewCSV(path).Fetch(context.Background(), "BTCUSDT", model.Interval1m, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := normalize.Klines("BTCUSDT", model.Interval1m, rows)
	if err != nil {
		t.Fatalf("Klines: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("round trip rows = %d, want 3", len(got))
	}
	if got[0].Time != 1_700_000_000 || got[0].Close != 100.5 {
		t.Errorf("row 0 = %+v", got[0])
	}
	// The NaN volume went out as an empty cell and comes back as NaN.
	if !math.IsNaN(got[2].Volume) {
		t.Errorf("row 2 volume = %v, want NaN", got[2].Volume)
	}
}

func TestJSONSaver_WritesKlineArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.json")
	if err := (JSONSaver{}).Save(testKlines(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []model.Kline
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[1].Close != 101.25 || !got[1].Closed {
		t.Errorf("row 1 = %+v", got[1])
	}
}

func TestParquetSaver_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.parquet")
	if err := (ParquetSaver{}).Save(testKlines(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := parquet.ReadFile[model.Kline](path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || got[0].Time != 1_700_000_000 || got[0].Close != 100.5 {
		t.Errorf("row 0 = %+v", got[0])
	}
	// Closed is not part of the schema and zeroes out on read.
	if got[0].Closed {
		t.Error("Closed should not survive the parquet round trip")
	}
}

// ─── frame writers ───────────────────────────────────────────────────────────

func TestWriteFrameCSV_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.csv")
	if err := WriteFrameCSV(testFrame(t), path); err != nil {
		t.Fatalf("WriteFrameCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0] != "time,open,high,low,close,SMA,Long_Entry" {
		t.Errorf("header = %q", lines[0])
	}
	// Row 0: SMA still warming up renders as an empty cell.
	if lines[1] != "1700000000,100,101,99,100,,false" {
		t.Errorf("row 0 = %q", lines[1])
	}
	if lines[2] != "1700000060,100,101,99,100.5,100.5,true" {
		t.Errorf("row 1 = %q", lines[2])
	}
}

func TestResultJSONSink_WritesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	res := &pipeline.Result{
		RunID:     "run-1",
		Symbol:    "BTCUSDT",
		Interval:  model.Interval1m,
		Rule:      "mean_reversion",
		Set:       "bollinger_rsi",
		Frame:     testFrame(t),
		Counts:    model.OutcomeCounts{Winning: 1, Losing: 1, Total: 2, AccuracyPct: 50},
		CreatedAt: time.Unix(1_700_000_200, 0).UTC(),
	}

	sink := NewResultJSONSink(path)
	if sink.Name() != "result-json" {
		t.Errorf("Name = %q", sink.Name())
	}
	if err := sink.Write(res); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc resultDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.RunID != "run-1" || doc.Outcome.Total != 2 || doc.Outcome.AccuracyPct != 50 {
		t.Errorf("doc = %+v", doc)
	}
	wantCols := []string{"time", "open", "high", "low", "close", "SMA", "Long_Entry"}
	if len(doc.Columns) != len(wantCols) || doc.Columns[5] != "SMA" {
		t.Errorf("columns = %v, want %v", doc.Columns, wantCols)
	}
	// The warming-up SMA cell is null, the signal cell a plain bool.
	if doc.Rows[0][5] != nil {
		t.Errorf("row 0 SMA = %v, want null", doc.Rows[0][5])
	}
	if v, ok := doc.Rows[1][6].(bool); !ok || !v {
		t.Errorf("row 1 Long_Entry = %v, want true", doc.Rows[1][6])
	}
}

func TestFrameCSVSink_Name(t *testing.T) {
	if got := NewFrameCSVSink("x.csv").Name(); got != "frame-csv" {
		t.Errorf("Name = %q", got)
	}
}
