// cmd/sigengine runs the live signal service: bars stream in from the
// configured source, flow through the indicator engine and rule evaluator,
// and signals fan out to Redis, SQLite and the notification backends.
//
// Configuration is environment-only; see config.LoadEnv for the variables.
//
// Usage:
//
//	BAR_SOURCE=ws FEED_URL=wss://stream.binance.com:9443 go run ./cmd/sigengine
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"signal-systemv1/config"
	"signal-systemv1/internal/live"
	"signal-systemv1/internal/logger"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("sigengine", logLevel())

	cfg := config.LoadEnv()
	log.Printf("[sigengine] source=%s symbols=%s intervals=%s rule=%s", cfg.Mode, cfg.Symbols, cfg.Intervals, cfg.Rule)

	svc, err := live.New(cfg)
	if err != nil {
		log.Fatalf("[sigengine] init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("[sigengine] fatal: %v", err)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
