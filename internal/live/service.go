// Package live runs the streaming signal service: it restores indicator
// state from the latest checkpoint, consumes bars from a websocket feed, a
// Redis consumer group or a stored-bar replay, evaluates the configured
// rule per closed bar and publishes indicator values and signal events.
package live

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/bus"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/resample"
	"signal-systemv1/internal/ringbuf"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
	"signal-systemv1/internal/strategy"
)

// Queue sizing. The ring absorbs feed bursts while the process loop holds
// the engine lock; fan-out buffers absorb store latency.
const (
	srcBuffer    = 1024
	ringCapacity = 4096
	fanBuffer    = 512

	breakerMaxFailures = 5
	breakerResetAfter  = 30 * time.Second
	maxBufferedWrites  = 10000

	livenessEvery   = 10 * time.Second
	saturationEvery = 5 * time.Second
)

// Service is the live signal engine. One instance consumes one bar source
// and evaluates one rule over a symbol and interval matrix.
type Service struct {
	cfg *config.LiveConfig

	symbols   []string
	intervals []model.Interval // subscribed source intervals, ascending
	derived   []model.Interval // locally resampled target intervals

	// mu guards engine, evaluator and resampler: the process loop, the
	// pump loop, the snapshot loop and /reload all touch them.
	mu        sync.Mutex
	engine    *indicator.Engine
	params    indicator.Params
	evaluator *strategy.Evaluator
	resampler *resample.Resampler

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	breaker     *redisstore.CircuitBreaker
	buffered    *redisstore.BufferedWriter
	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader

	notifier *notification.Multi

	prom   *metrics.Metrics
	health *metrics.HealthStatus
	http   *metrics.Server

	fan      *bus.FanOut
	ring     *ringbuf.Ring
	srcCh    chan model.Kline
	busIn    chan model.Kline
	procCh   <-chan model.Kline
	sqlCh    <-chan model.Kline
	redisCh  <-chan model.Kline
	subNames []string

	streams []string // redis-mode stream keys
}

// New wires the service from its environment config. Redis is required;
// SQLite failures degrade to warn-and-continue, except in replay mode
// where the archive is the bar source.
func New(cfg *config.LiveConfig) (*Service, error) {
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		return nil, errors.New("live: no symbols configured")
	}
	intervals := cfg.ParseIntervals()
	if len(intervals) == 0 {
		return nil, errors.New("live: no valid intervals configured")
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].Seconds() < intervals[j].Seconds()
	})

	rule, err := strategy.New(cfg.Rule, strategy.Params{})
	if err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}

	svc := &Service{
		cfg:       cfg,
		symbols:   symbols,
		intervals: intervals,
		params:    indicator.DefaultParams(),
		evaluator: strategy.NewEvaluator(rule),
		srcCh:     make(chan model.Kline, srcBuffer),
		busIn:     make(chan model.Kline, srcBuffer),
		ring:      ringbuf.New(ringCapacity),
		fan:       bus.New(fanBuffer),
	}

	if derived := cfg.ParseResampleIntervals(); len(derived) > 0 {
		r, err := resample.New(derived)
		if err != nil {
			return nil, fmt.Errorf("live: %w", err)
		}
		svc.resampler = r
		svc.derived = r.Intervals()
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("live: redis writer: %w", err)
	}
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
		SnapshotKey:   cfg.SnapshotKey,
	})
	if err != nil {
		return nil, fmt.Errorf("live: redis reader: %w", err)
	}
	if cfg.Mode == config.LiveModeRedis {
		svc.streams = redisstore.BarStreams(symbols, intervals)
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[live] WARNING: sqlite writer init failed: %v (continuing without bar archive)", err)
		svc.sqlWriter = nil
	}
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[live] WARNING: sqlite reader init failed: %v (continuing without backfill)", err)
		svc.sqlReader = nil
	}
	if cfg.Mode == config.LiveModeReplay && svc.sqlReader == nil {
		return nil, errors.New("live: replay source needs a readable bar archive")
	}

	svc.prom = metrics.NewMetrics()
	svc.health = metrics.NewHealthStatus()
	svc.http = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.http.Handle("/reload", http.HandlerFunc(svc.handleReload))

	svc.breaker = redisstore.NewCircuitBreaker(breakerMaxFailures, breakerResetAfter)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Printf("[live] redis circuit breaker %s → %s", from, to)
	}

	svc.notifier = notification.NewMulti(svc.buildBackends()...)
	svc.notifier.OnResult = func(backend string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		svc.prom.NotificationsTotal.WithLabelValues(backend, outcome).Inc()
	}

	return svc, nil
}

func (svc *Service) buildBackends() []notification.Notifier {
	var backends []notification.Notifier
	if svc.cfg.TelegramToken != "" && svc.cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(svc.cfg.TelegramToken, svc.cfg.TelegramChatID))
		log.Println("[live] telegram notifications enabled")
	}
	if svc.cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(svc.cfg.WebhookURL))
		log.Println("[live] webhook notifications enabled")
	}
	backends = append(backends, notification.NewLogNotifier())
	return backends
}

// Run starts every subsystem and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.buffered = redisstore.NewBufferedWriter(ctx, svc.redisWriter, svc.breaker, maxBufferedWrites)
	svc.buffered.OnBuffer = func() { svc.prom.RedisBufferedWrites.Inc() }
	svc.buffered.OnFlush = func(count int) {
		log.Printf("[live] flushed %d buffered redis writes", count)
	}

	// ---- Restore indicator state ----
	snap, err := svc.restoreEngine(ctx)
	if err != nil {
		return err
	}
	svc.replayDelta(ctx, snap)
	svc.health.SetEngineOK(true)

	// ---- Fan-out subscribers ----
	svc.procCh = svc.fan.Subscribe()
	svc.subNames = []string{"process"}
	if svc.sqlWriter != nil && svc.cfg.Mode != config.LiveModeReplay {
		// A replay reads the archive; writing the same rows back is noise.
		svc.sqlCh = svc.fan.Subscribe()
		svc.subNames = append(svc.subNames, "sqlite")
	}
	if svc.cfg.Mode != config.LiveModeRedis {
		// Redis-mode bars already live in the streams they came from.
		svc.redisCh = svc.fan.Subscribe()
		svc.subNames = append(svc.subNames, "redis")
	}
	svc.fan.OnDrop = func(idx int) {
		svc.prom.FanoutDropsTotal.WithLabelValues(svc.subNames[idx]).Inc()
		svc.prom.DroppedBars.Inc()
	}
	if svc.resampler != nil {
		svc.wireResampler(svc.resampler)
	}

	// ---- Start subsystems ----
	go svc.fan.Run(ctx, svc.busIn)
	go svc.ingestLoop(ctx)
	go svc.pumpLoop(ctx)
	go svc.processLoop(ctx)
	if svc.sqlCh != nil {
		go svc.sqlWriter.Run(ctx, svc.sqlCh)
	}
	if svc.redisCh != nil {
		go svc.redisWriter.Run(ctx, svc.redisCh)
	}
	go svc.snapshotLoop(ctx)
	go svc.saturationLoop(ctx)

	// ---- Attach the bar source ----
	if err := svc.startSource(ctx); err != nil {
		return err
	}

	var sqlDB *sql.DB
	if svc.sqlWriter != nil {
		sqlDB = svc.sqlWriter.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), sqlDB, livenessEvery)
	svc.health.SetScope(svc.evaluator.Rule().Name(), svc.symbols, intervalStrings(svc.allIntervals()))
	svc.http.Start()

	rule := svc.evaluator.Rule()
	log.Println("[live] ╔════════════════════════════════════════════════════════╗")
	log.Println("[live] ║  Signal Engine Active                                  ║")
	log.Println("[live] ║                                                        ║")
	log.Printf("[live] ║  [%s bars] → [%s] → [signals]              ║", svc.cfg.Mode, rule.Set())
	log.Printf("[live] ║  rule=%s  checkpoint every %ds             ║", rule.Name(), svc.cfg.SnapshotEverySec)
	log.Printf("[live] ║  %v %v                              ║", svc.symbols, svc.allIntervals())
	log.Println("[live] ╚════════════════════════════════════════════════════════╝")
	log.Println("[live] ✅ all systems running. Press Ctrl+C to stop.")
	slog.Info("service started",
		"rule", rule.Name(), "mode", svc.cfg.Mode,
		"symbols", svc.symbols, "intervals", intervalStrings(svc.allIntervals()))

	<-ctx.Done()
	svc.shutdown()
	return nil
}

// shutdown saves a final checkpoint and closes connections. The checkpoint
// writes carry their own timeouts, so this terminates even with Redis down.
func (svc *Service) shutdown() {
	log.Println("[live] shutdown signal received, saving final checkpoint...")
	svc.checkpoint()

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	svc.http.Stop(stopCtx)

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	slog.Info("service stopped")
	log.Println("[live] shutdown complete.")
}

// wireResampler attaches the resampler hooks to the metrics registry.
func (svc *Service) wireResampler(r *resample.Resampler) {
	if svc.prom == nil {
		return
	}
	r.OnFinalized = func(k model.Kline) {
		svc.prom.ResampledBarsTotal.WithLabelValues(string(k.Interval)).Inc()
	}
	r.OnStale = func() { svc.prom.StaleBarsRejected.Inc() }
}

// saturationLoop exports queue fill levels so backpressure is visible
// before drops start.
func (svc *Service) saturationLoop(ctx context.Context) {
	ticker := time.NewTicker(saturationEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.prom.ChannelSaturationPct.WithLabelValues("source").Set(pct(len(svc.srcCh), cap(svc.srcCh)))
			svc.prom.ChannelSaturationPct.WithLabelValues("ring").Set(pct(svc.ring.Len(), svc.ring.Cap()))
			svc.prom.ChannelSaturationPct.WithLabelValues("fanout_in").Set(pct(len(svc.busIn), cap(svc.busIn)))
			for i, st := range svc.fan.ChannelStats() {
				svc.prom.ChannelSaturationPct.WithLabelValues(svc.subNames[i]).Set(pct(st.Len, st.Cap))
			}
		}
	}
}

func pct(n, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(n) / float64(capacity) * 100
}

// allIntervals returns subscribed plus derived intervals.
func (svc *Service) allIntervals() []model.Interval {
	out := make([]model.Interval, 0, len(svc.intervals)+len(svc.derived))
	out = append(out, svc.intervals...)
	out = append(out, svc.derived...)
	return out
}

func intervalStrings(ivs []model.Interval) []string {
	out := make([]string, len(ivs))
	for i, iv := range ivs {
		out[i] = string(iv)
	}
	return out
}
