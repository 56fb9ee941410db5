// cmd/backtest runs the batch signal pipeline over a historical range to
// validate a rule before it goes live: fetch, normalize, indicators, signals,
// outcome tally, exports.
//
// Usage:
//
//	go run ./cmd/backtest -config config.yaml -rule mean_reversion -start 2024-01-01 -end 2024-06-30
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/pipeline"
	"signal-systemv1/internal/saver"
	"signal-systemv1/internal/source"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	rule := flag.String("rule", "", "Rule override (mean_reversion, trend_momentum)")
	symbol := flag.String("symbol", "", "Symbol override, e.g. BTCUSDT")
	interval := flag.String("interval", "", "Interval override, e.g. 1h")
	start := flag.String("start", "", "Range start override (2006-01-02 or RFC3339)")
	end := flag.String("end", "", "Range end override")
	srcKind := flag.String("source", "", "Source override (csv, binance, sqlite, synthetic)")
	strict := flag.Bool("strict", false, "Fail on series shorter than the warm-up window")
	csvOut := flag.String("csv", "", "Write the frame to this CSV path")
	jsonOut := flag.String("json", "", "Write the run result to this JSON path")
	record := flag.Bool("record", false, "Archive the run in the SQLite runs table")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	applyOverrides(cfg, *rule, *symbol, *interval, *start, *end, *srcKind)
	if *strict {
		cfg.Pipeline.Strict = true
	}
	if *csvOut != "" {
		cfg.Export.CSVPath = *csvOut
	}
	if *jsonOut != "" {
		cfg.Export.JSONPath = *jsonOut
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}

	src, closeSrc, err := buildSource(cfg)
	if err != nil {
		log.Fatalf("[backtest] source: %v", err)
	}
	defer closeSrc()

	iv, err := cfg.Interval()
	if err != nil {
		log.Fatalf("[backtest] interval: %v", err)
	}
	startT, endT, err := cfg.Range()
	if err != nil {
		log.Fatalf("[backtest] range: %v", err)
	}

	sinks, closeSinks, err := buildSinks(cfg, *record)
	if err != nil {
		log.Fatalf("[backtest] sinks: %v", err)
	}
	defer closeSinks()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	res, err := pipeline.Run(ctx, pipeline.Config{
		Source:          src,
		Symbol:          cfg.Source.Symbol,
		Interval:        iv,
		Start:           startT,
		End:             endT,
		Rule:            cfg.Pipeline.Rule,
		RuleParams:      cfg.RuleParams(),
		Set:             cfg.Pipeline.Set,
		IndicatorParams: cfg.IndicatorParams(),
		Strict:          cfg.Pipeline.Strict,
		Sinks:           sinks,
	})
	if err != nil {
		log.Fatalf("[backtest] run failed: %v", err)
	}

	printSignals(res)
	printSummary(res)
}

func applyOverrides(cfg *config.Config, rule, symbol, interval, start, end, srcKind string) {
	if rule != "" {
		cfg.Pipeline.Rule = rule
	}
	if symbol != "" {
		cfg.Source.Symbol = symbol
	}
	if interval != "" {
		cfg.Source.Interval = interval
	}
	if start != "" {
		cfg.Source.Start = start
	}
	if end != "" {
		cfg.Source.End = end
	}
	if srcKind != "" {
		cfg.Source.Kind = srcKind
	}
}

// buildSource maps source.kind to a SeriesSource. The returned closer is a
// no-op for everything but the sqlite reader.
func buildSource(cfg *config.Config) (model.SeriesSource, func(), error) {
	noop := func() {}
	switch cfg.Source.Kind {
	case config.SourceBinance:
		return source.NewBinance(cfg.Source.BaseURL), noop, nil
	case config.SourceCSV:
		return source.NewCSV(cfg.Source.Path), noop, nil
	case config.SourceSQLite:
		reader, err := sqlitestore.NewReader(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return source.NewStore(reader), func() { reader.Close() }, nil
	case config.SourceSynthetic:
		return &source.Synthetic{}, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown source.kind %q", cfg.Source.Kind)
	}
}

func buildSinks(cfg *config.Config, record bool) ([]pipeline.Sink, func(), error) {
	var sinks []pipeline.Sink
	noop := func() {}
	if cfg.Export.CSVPath != "" {
		sinks = append(sinks, saver.NewFrameCSVSink(cfg.Export.CSVPath))
	}
	if cfg.Export.JSONPath != "" {
		sinks = append(sinks, saver.NewResultJSONSink(cfg.Export.JSONPath))
	}
	if !record {
		return sinks, noop, nil
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Database.SQLitePath})
	if err != nil {
		return nil, nil, err
	}
	sinks = append(sinks, sqlitestore.NewRunSink(w))
	return sinks, func() { w.Close() }, nil
}

// printSignals echoes the last few entry rows so a run is inspectable
// without opening the exports.
func printSignals(res *pipeline.Result) {
	longs, _ := res.Frame.Bool(strategy.ColLongEntry)
	shorts, _ := res.Frame.Bool(strategy.ColShortEntry)

	const tail = 10
	var lines []string
	for i := 0; i < res.Frame.Rows(); i++ {
		var side string
		switch {
		case i < len(longs) && longs[i]:
			side = "LONG"
		case i < len(shorts) && shorts[i]:
			side = "SHORT"
		default:
			continue
		}
		row := res.Frame.Row(i)
		ts := time.Unix(row.Time(), 0).UTC().Format("2006-01-02 15:04")
		lines = append(lines, fmt.Sprintf("  [%s] %-5s %s:%s close=%.4f",
			ts, side, res.Symbol, res.Interval, row.Close()))
		if len(lines) > tail {
			lines = lines[1:]
		}
	}
	for _, l := range lines {
		fmt.Println(l)
	}
}

func printSummary(res *pipeline.Result) {
	entries := countEntries(res)
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  %-18s %-16d ║\n", "Rows:", res.Frame.Rows())
	fmt.Printf("║  %-18s %-16s ║\n", "Rule:", res.Rule)
	fmt.Printf("║  %-18s %-16d ║\n", "Entry signals:", entries)
	fmt.Printf("║  %-18s %-16s ║\n", "Winning / losing:", fmt.Sprintf("%d / %d", res.Counts.Winning, res.Counts.Losing))
	fmt.Printf("║  %-18s %-16s ║\n", "Accuracy:", fmt.Sprintf("%.1f%%", res.Counts.AccuracyPct))
	fmt.Printf("║  %-18s %-16s ║\n", "Elapsed:", res.Elapsed.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

func countEntries(res *pipeline.Result) int {
	n := 0
	for _, col := range []string{strategy.ColLongEntry, strategy.ColShortEntry} {
		vals, ok := res.Frame.Bool(col)
		if !ok {
			continue
		}
		for _, v := range vals {
			if v {
				n++
			}
		}
	}
	return n
}
