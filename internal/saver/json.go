package saver

import (
	"encoding/json"
	"os"

	"signal-systemv1/internal/model"
)

// JSONSaver writes bars as an indented JSON array of stamped klines.
// Encoding fails on NaN fields; fetched bars are always fully numeric.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(kls []model.Kline, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(kls)
}
