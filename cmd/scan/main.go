// cmd/scan watches the market on a cron schedule: each tick fetches the
// recent window per symbol+interval, runs the batch pipeline over it, and if
// the latest closed bar fires an entry signal, sends a notification and
// archives the run. A bar alerts at most once per side, however many ticks
// it stays the latest.
//
// Usage:
//
//	go run ./cmd/scan -config config.yaml -now
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"signal-systemv1/config"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/pipeline"
	"signal-systemv1/internal/source"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	cronSpec := flag.String("cron", "", "Cron spec override (seconds precision)")
	lookback := flag.Int("lookback", 0, "Bars fetched per tick override")
	record := flag.Bool("record", true, "Archive each run in the SQLite runs table")
	runNow := flag.Bool("now", false, "Run one scan immediately, then follow the schedule")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[scan] config: %v", err)
	}
	if *cronSpec != "" {
		cfg.Scan.Cron = *cronSpec
	}
	if *lookback > 0 {
		cfg.Scan.Lookback = *lookback
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[scan] config: %v", err)
	}

	intervals, err := parseScanIntervals(cfg.Scan.Intervals)
	if err != nil {
		log.Fatalf("[scan] intervals: %v", err)
	}

	var writer *sqlitestore.Writer
	if *record {
		writer, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Database.SQLitePath})
		if err != nil {
			log.Printf("[scan] WARNING: sqlite open failed: %v, continuing without run records", err)
		} else {
			defer writer.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	s := &scanner{
		cfg:       cfg,
		intervals: intervals,
		src:       source.NewBinance(cfg.Source.BaseURL),
		writer:    writer,
		notifier:  buildNotifier(cfg),
		alerted:   make(map[string]int64),
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Scan.Cron, func() { s.run(ctx) }); err != nil {
		log.Fatalf("[scan] bad cron spec %q: %v", cfg.Scan.Cron, err)
	}

	if *runNow {
		s.run(ctx)
	}

	c.Start()
	log.Printf("[scan] ⏰ scheduled %q over %v × %v (lookback %d bars)",
		cfg.Scan.Cron, cfg.Scan.Symbols, cfg.Scan.Intervals, cfg.Scan.Lookback)

	<-ctx.Done()

	// Let an in-flight tick finish before closing the writer.
	<-c.Stop().Done()
	log.Printf("[scan] stopped")
}

// scanner holds the collaborators one tick needs. alerted remembers the last
// bar time notified per symbol:interval:side so a bar that stays the latest
// across ticks alerts once.
type scanner struct {
	cfg       *config.Config
	intervals []model.Interval
	src       *source.Binance
	writer    *sqlitestore.Writer
	notifier  *notification.Multi
	alerted   map[string]int64
}

func (s *scanner) run(ctx context.Context) {
	for _, sym := range s.cfg.Scan.Symbols {
		for _, iv := range s.intervals {
			if ctx.Err() != nil {
				return
			}
			if err := s.scanPair(ctx, sym, iv); err != nil {
				log.Printf("[scan] %s:%s: %v", sym, iv, err)
			}
		}
	}
}

func (s *scanner) scanPair(ctx context.Context, symbol string, interval model.Interval) error {
	bucket := time.Duration(interval.Seconds()) * time.Second

	// Truncating end to the bucket boundary drops the forming candle: the
	// fetch range is [start, end) over open times.
	end := time.Now().UTC().Truncate(bucket)
	start := end.Add(-time.Duration(s.cfg.Scan.Lookback) * bucket)

	var sinks []pipeline.Sink
	if s.writer != nil {
		sinks = append(sinks, sqlitestore.NewRunSink(s.writer))
	}

	res, err := pipeline.Run(ctx, pipeline.Config{
		Source:          s.src,
		Symbol:          symbol,
		Interval:        interval,
		Start:           start,
		End:             end,
		Rule:            s.cfg.Pipeline.Rule,
		RuleParams:      s.cfg.RuleParams(),
		Set:             s.cfg.Pipeline.Set,
		IndicatorParams: s.cfg.IndicatorParams(),
		Sinks:           sinks,
	})
	if err != nil {
		return err
	}

	last := res.Frame.Rows() - 1
	if last < 0 {
		return nil
	}
	for _, ev := range s.entriesAt(res, last) {
		key := ev.Symbol + ":" + string(ev.Interval) + ":" + string(ev.Side)
		if s.alerted[key] == ev.Time {
			continue
		}
		s.alerted[key] = ev.Time
		log.Printf("[scan] signal %s %s %s:%s close=%v", ev.Side, ev.Rule, ev.Symbol, ev.Interval, ev.Close)
		s.notifier.Send(ctx, notification.FromSignal(ev))
	}
	return nil
}

// entriesAt turns the entry flags of one frame row into signal events.
func (s *scanner) entriesAt(res *pipeline.Result, i int) []model.SignalEvent {
	row := res.Frame.Row(i)
	var events []model.SignalEvent
	emit := func(side model.Side) {
		events = append(events, model.SignalEvent{
			ID:       uuid.NewString(),
			Symbol:   res.Symbol,
			Interval: res.Interval,
			Time:     row.Time(),
			Rule:     res.Rule,
			Side:     side,
			Kind:     model.SignalEntry,
			Close:    row.Close(),
			Reason:   strategy.Describe(res.Rule, side, model.SignalEntry),
		})
	}
	if longs, ok := res.Frame.Bool(strategy.ColLongEntry); ok && longs[i] {
		emit(model.SideLong)
	}
	if shorts, ok := res.Frame.Bool(strategy.ColShortEntry); ok && shorts[i] {
		emit(model.SideShort)
	}
	return events
}

func buildNotifier(cfg *config.Config) *notification.Multi {
	var backends []notification.Notifier
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
		log.Printf("[scan] telegram notifications enabled")
	}
	if cfg.Notify.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
		log.Printf("[scan] webhook notifications enabled")
	}
	backends = append(backends, notification.NewLogNotifier())
	return notification.NewMulti(backends...)
}

func parseScanIntervals(raw []string) ([]model.Interval, error) {
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
