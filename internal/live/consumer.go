package live

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/feed"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/replay"
)

// startSource attaches the configured bar source to the source channel.
func (svc *Service) startSource(ctx context.Context) error {
	switch svc.cfg.Mode {
	case config.LiveModeWS:
		ing, err := feed.New(feed.Config{
			BaseURL:   svc.cfg.FeedURL,
			Symbols:   svc.symbols,
			Intervals: svc.intervals,
		})
		if err != nil {
			return fmt.Errorf("live: %w", err)
		}
		ing.OnReconnect = func() {
			svc.prom.WSReconnects.Inc()
			svc.health.SetWSConnected(false)
		}
		go func() {
			if err := ing.Start(ctx, svc.srcCh); err != nil {
				log.Printf("[live] feed stopped: %v", err)
			}
		}()

	case config.LiveModeRedis:
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[live] WARNING: consumer group setup: %v", err)
		}
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.srcCh); err != nil {
			log.Printf("[live] pending recovery error: %v", err)
		}
		go func() {
			if err := svc.redisReader.ConsumeKlines(ctx, svc.streams, svc.srcCh); err != nil {
				log.Printf("[live] consumer error: %v", err)
			}
		}()
		log.Printf("[live] consuming %d bar streams: %v", len(svc.streams), svc.streams)

	case config.LiveModeReplay:
		rep := replay.New(svc.sqlReader)
		go func() {
			if err := rep.Run(ctx, svc.symbols, svc.intervals,
				svc.cfg.ReplayFrom, svc.cfg.ReplaySpeed, svc.srcCh); err != nil {
				log.Printf("[live] replay stopped: %v", err)
			}
		}()

	default:
		return fmt.Errorf("live: unknown bar source %q", svc.cfg.Mode)
	}
	return nil
}

// ingestLoop moves bars from the source channel into the ring. The ring
// absorbs bursts; a full ring drops the bar rather than stalling the
// source reader.
func (svc *Service) ingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-svc.srcCh:
			if !ok {
				return
			}
			if !svc.ring.Push(k) {
				svc.prom.RingOverflow.Inc()
				svc.prom.DroppedBars.Inc()
			}
		}
	}
}

// pumpLoop drains the ring into the fan-out, deriving resampled intervals
// from base-interval closed bars on the way.
func (svc *Service) pumpLoop(ctx context.Context) {
	for {
		k, ok := svc.ring.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		svc.forward(ctx, k)
	}
}

// forward hands one bar to the fan-out. Closed bars at the base interval
// also feed the resampler; aggregating more than one source interval would
// double-count volume, so only the lowest subscribed interval contributes.
func (svc *Service) forward(ctx context.Context, k model.Kline) {
	select {
	case svc.busIn <- k:
	case <-ctx.Done():
		return
	}
	if svc.resampler == nil || !k.Closed || k.Interval != svc.intervals[0] {
		return
	}
	start := time.Now()
	svc.mu.Lock()
	svc.resampler.Process(k, svc.busIn)
	svc.mu.Unlock()
	svc.prom.ResampleDur.Observe(time.Since(start).Seconds())
}

// processLoop consumes bars from its fan-out subscription and runs the
// engine plus rule evaluation.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-svc.procCh:
			if !ok {
				return
			}
			svc.processBar(ctx, k)
		}
	}
}

// processBar updates the bar's indicator set and, for closed bars,
// evaluates the rule and publishes what fired. Forming bars only produce
// preview values.
func (svc *Service) processBar(ctx context.Context, k model.Kline) {
	start := time.Now()
	svc.mu.Lock()
	var vals []model.IndicatorValue
	if k.Closed {
		vals = svc.engine.Process(k)
	} else {
		vals = svc.engine.ProcessPeek(k)
	}
	var events []model.SignalEvent
	if k.Closed && len(vals) > 0 {
		names, floats := splitValues(vals)
		events = svc.evaluator.OnBar(k, names, floats)
	}
	svc.mu.Unlock()

	svc.prom.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	if len(vals) > 0 {
		svc.prom.IndicatorsTotal.Add(float64(len(vals)))
	}
	if k.Closed {
		svc.prom.BarsTotal.Inc()
		closeTime := time.Unix(k.Time+k.Interval.Seconds(), 0)
		svc.prom.BarLag.Set(time.Since(closeTime).Seconds())
		svc.health.SetLastBarTime(closeTime)
		if svc.cfg.Mode == config.LiveModeWS {
			svc.health.SetWSConnected(true)
		}
	}

	svc.publishValues(ctx, vals)
	for _, ev := range events {
		svc.emitSignal(ctx, ev)
	}
}

// splitValues unzips engine output into the parallel name and value slices
// the evaluator reads. Undefined cells become NaN so comparisons stay
// false.
func splitValues(vals []model.IndicatorValue) ([]string, []float64) {
	names := make([]string, len(vals))
	floats := make([]float64, len(vals))
	for i, v := range vals {
		names[i] = v.Column
		if v.Defined {
			floats[i] = v.Value
		} else {
			floats[i] = math.NaN()
		}
	}
	return names, floats
}

// publishValues writes a value batch through the circuit-breaker path.
func (svc *Service) publishValues(ctx context.Context, vals []model.IndicatorValue) {
	if len(vals) == 0 {
		return
	}
	start := time.Now()
	err := svc.buffered.PublishValues(ctx, vals)
	svc.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Printf("[live] publish values: %v", err)
	}
}

// emitSignal publishes one signal event and notifies entries.
func (svc *Service) emitSignal(ctx context.Context, ev model.SignalEvent) {
	svc.prom.SignalsTotal.WithLabelValues(ev.Rule, string(ev.Side)).Inc()
	log.Printf("[live] signal %s %s %s %s:%s close=%v",
		ev.Rule, ev.Side, ev.Kind, ev.Symbol, ev.Interval, ev.Close)

	if err := svc.buffered.PublishSignal(ctx, ev); err != nil {
		log.Printf("[live] publish signal: %v", err)
	}
	if ev.Kind == model.SignalEntry {
		svc.notifier.Send(ctx, notification.FromSignal(ev))
	}
}
