// cmd/fetch pulls klines from the Binance REST API into the SQLite archive
// and/or flat files. Fetches resume from the last stored bar per
// symbol+interval unless an explicit -start is given; the last bar is
// refetched in case it was archived while still forming.
//
// Usage:
//
//	go run ./cmd/fetch -symbols BTCUSDT,ETHUSDT -intervals 1h,4h -start 2024-01-01
//	go run ./cmd/fetch -out data/export -format parquet -sqlite=false
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/normalize"
	"signal-systemv1/internal/saver"
	"signal-systemv1/internal/source"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	symbolsStr := flag.String("symbols", "", "Comma-separated symbols (default: scan.symbols)")
	intervalsStr := flag.String("intervals", "", "Comma-separated intervals (default: scan.intervals)")
	start := flag.String("start", "", "Range start (2006-01-02 or RFC3339; default: resume from archive)")
	end := flag.String("end", "", "Range end (default: now)")
	useSQLite := flag.Bool("sqlite", true, "Archive fetched bars in SQLite")
	outDir := flag.String("out", "", "Directory for file export (empty=skip)")
	format := flag.String("format", "csv", "File export format: csv, json or parquet")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[fetch] config: %v", err)
	}
	if *start != "" {
		cfg.Source.Start = *start
	}
	if *end != "" {
		cfg.Source.End = *end
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[fetch] config: %v", err)
	}

	symbols := splitList(*symbolsStr, cfg.Scan.Symbols)
	intervals, err := parseIntervals(splitList(*intervalsStr, cfg.Scan.Intervals))
	if err != nil {
		log.Fatalf("[fetch] intervals: %v", err)
	}

	var writer *sqlitestore.Writer
	if *useSQLite {
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		writer, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Database.SQLitePath})
		if err != nil {
			log.Fatalf("[fetch] sqlite open failed: %v", err)
		}
		defer writer.Close()
	}

	var sv saver.Saver
	if *outDir != "" {
		sv, err = saver.New(*format)
		if err != nil {
			log.Fatalf("[fetch] %v", err)
		}
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("[fetch] out dir: %v", err)
		}
	}
	if writer == nil && sv == nil {
		log.Fatal("[fetch] nothing to do: -sqlite=false and no -out directory")
	}

	startT, endT, err := cfg.Range()
	if err != nil {
		log.Fatalf("[fetch] range: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	src := source.NewBinance(cfg.Source.BaseURL)
	total := 0
	for _, sym := range symbols {
		for _, iv := range intervals {
			n, err := fetchOne(ctx, src, writer, sv, *outDir, sym, iv, startT, endT, *start != "")
			if err != nil {
				log.Fatalf("[fetch] %s:%s: %v", sym, iv, err)
			}
			total += n
		}
	}
	log.Printf("[fetch] ✅ done, %d bars across %d symbol/interval pairs", total, len(symbols)*len(intervals))
}

func fetchOne(ctx context.Context, src *source.Binance, writer *sqlitestore.Writer, sv saver.Saver,
	outDir, symbol string, interval model.Interval, start, end time.Time, explicitStart bool) (int, error) {

	if writer != nil && !explicitStart {
		last, err := writer.LastTimestamp(symbol, interval)
		if err != nil {
			return 0, err
		}
		if last > 0 {
			start = time.Unix(last, 0).UTC()
			log.Printf("[fetch] %s:%s resuming from %s", symbol, interval, start.Format(time.RFC3339))
		}
	}

	rows, err := src.Fetch(ctx, symbol, interval, start, end)
	if err != nil {
		return 0, err
	}
	kls, err := normalize.Klines(symbol, interval, rows)
	if err != nil {
		return 0, err
	}
	if len(kls) == 0 {
		log.Printf("[fetch] %s:%s nothing new", symbol, interval)
		return 0, nil
	}

	if writer != nil {
		if err := writer.WriteBatch(kls); err != nil {
			return 0, err
		}
	}
	if sv != nil {
		path := filepath.Join(outDir, symbol+"_"+string(interval)+"."+sv.Extension())
		if err := sv.Save(kls, path); err != nil {
			return 0, err
		}
		log.Printf("[fetch] wrote %s", path)
	}

	log.Printf("[fetch] ✅ %s:%s %d bars (%s → %s)", symbol, interval, len(kls),
		time.Unix(kls[0].Time, 0).UTC().Format(time.RFC3339),
		time.Unix(kls[len(kls)-1].Time, 0).UTC().Format(time.RFC3339))
	return len(kls), nil
}

func splitList(s string, fallback []string) []string {
	if s == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntervals(raw []string) ([]model.Interval, error) {
	var out []model.Interval
	for _, s := range raw {
		iv, err := model.ParseInterval(s)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, nil
}
