// Package saver persists fetched bars and computed frames to disk. Bar
// savers share one interface so cmd/fetch can pick the output format off a
// flag; the frame writers render a finished pipeline run with its indicator
// and signal columns for inspection in other tools.
package saver

import (
	"fmt"
	"strings"

	"signal-systemv1/internal/model"
)

// Saver persists a chunk of stamped bars to one file.
type Saver interface {
	// Save writes kls to path, creating or truncating it.
	Save(kls []model.Kline, path string) error

	// Extension is the file extension the format conventionally carries.
	Extension() string
}

// New returns the saver for a format name: "csv", "json" or "parquet".
func New(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	default:
		return nil, fmt.Errorf("saver: unsupported format %q (want csv, json or parquet)", format)
	}
}
