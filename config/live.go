package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
)

// Bar source modes for the live service.
const (
	LiveModeWS     = "ws"     // exchange websocket feed
	LiveModeRedis  = "redis"  // consumer group over bar streams
	LiveModeReplay = "replay" // stored bars at a speed multiplier
)

// LiveConfig holds the signal service configuration, loaded from environment
// variables only: the service runs containerized and has no config file.
type LiveConfig struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Bar source
	Mode        string // ws | redis | replay
	FeedURL     string
	ReplaySpeed float64
	ReplayFrom  int64 // unix seconds, 0 = full archive

	// Redis consumer identity (redis mode)
	ConsumerGroup string
	ConsumerName  string

	// Subscription, comma-separated
	Symbols   string
	Intervals string

	// Derived intervals built locally from the base feed interval,
	// comma-separated. Empty disables resampling.
	ResampleIntervals string

	// Evaluation
	Rule string

	// Checkpointing
	SnapshotEverySec int
	SnapshotKey      string

	// Notification backends; empty values disable the backend.
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string
}

// LoadEnv reads the live service configuration with sensible defaults.
func LoadEnv() *LiveConfig {
	return &LiveConfig{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Mode:        getEnv("BAR_SOURCE", LiveModeWS),
		FeedURL:     getEnv("FEED_URL", "wss://stream.binance.com:9443"),
		ReplaySpeed: getEnvFloat("REPLAY_SPEED", 60),
		ReplayFrom:  getEnvInt64("REPLAY_FROM_TS", 0),

		ConsumerGroup: getEnv("CONSUMER_GROUP", "sigengine"),
		ConsumerName:  getEnv("CONSUMER_NAME", defaultConsumerName()),

		Symbols:   getEnv("SYMBOLS", "BTCUSDT"),
		Intervals: getEnv("INTERVALS", "1m"),

		ResampleIntervals: getEnv("RESAMPLE_INTERVALS", ""),

		Rule: getEnv("SIGNAL_RULE", strategy.RuleMeanReversion),

		SnapshotEverySec: getEnvInt("SNAPSHOT_EVERY_SEC", 30),
		SnapshotKey:      getEnv("SNAPSHOT_KEY", "sig:snapshot:engine"),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
	}
}

// defaultConsumerName gives each unnamed instance a stable-enough identity
// so two accidental replicas do not steal each other's pending entries.
func defaultConsumerName() string {
	return "worker-" + uuid.NewString()[:8]
}

// ParseSymbols splits the comma-separated symbol list.
func (c *LiveConfig) ParseSymbols() []string {
	return splitSymbols(c.Symbols)
}

// ParseIntervals parses the comma-separated interval list, skipping invalid
// entries with a log line.
func (c *LiveConfig) ParseIntervals() []model.Interval {
	return splitIntervals(c.Intervals)
}

// ParseResampleIntervals parses the derived-interval list the same way.
func (c *LiveConfig) ParseResampleIntervals() []model.Interval {
	return splitIntervals(c.ResampleIntervals)
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func splitIntervals(s string) []model.Interval {
	parts := strings.Split(s, ",")
	out := make([]model.Interval, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		iv, err := model.ParseInterval(p)
		if err != nil {
			log.Printf("[config] skipping invalid interval: %q", p)
			continue
		}
		out = append(out, iv)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] %s=%q is not a number, using %g", key, v, fallback)
		return fallback
	}
	return f
}
