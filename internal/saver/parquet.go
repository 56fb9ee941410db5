package saver

import (
	"github.com/parquet-go/parquet-go"

	"signal-systemv1/internal/model"
)

// ParquetSaver writes bars as a Parquet file, schema derived from the
// kline struct tags.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(kls []model.Kline, path string) error {
	return parquet.WriteFile(path, kls)
}
