package saver

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"signal-systemv1/internal/model"
)

// CSVSaver writes bars in the six-field wire shape, open_time in
// milliseconds, so the file reads straight back through the CSV source.
// Symbol and interval live in the filename, not the rows.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(kls []model.Kline, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"open_time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, k := range kls {
		rec := []string{
			strconv.FormatInt(k.Time*1000, 10),
			floatCell(k.Open),
			floatCell(k.High),
			floatCell(k.Low),
			floatCell(k.Close),
			floatCell(k.Volume),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// floatCell renders v as its shortest round-trip decimal, NaN as an empty
// cell.
func floatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
