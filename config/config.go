// Package config loads the run configuration: a YAML file with environment
// overrides for the batch pipeline and scan scheduler, and an env-only
// variant for the long-running signal service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
)

// Source kinds accepted by source.kind.
const (
	SourceCSV       = "csv"
	SourceBinance   = "binance"
	SourceSQLite    = "sqlite"
	SourceSynthetic = "synthetic"
)

// Config holds the batch pipeline and scan configuration.
type Config struct {
	Pipeline struct {
		Rule   string `yaml:"rule"`
		Set    string `yaml:"set"` // optional override, defaults from the rule
		Strict bool   `yaml:"strict"`

		Windows struct {
			SMA        int     `yaml:"sma"`
			BandK      float64 `yaml:"band_k"`
			RSI        int     `yaml:"rsi"`
			MACDFast   int     `yaml:"macd_fast"`
			MACDSlow   int     `yaml:"macd_slow"`
			MACDSignal int     `yaml:"macd_signal"`
			ROC        int     `yaml:"roc"`
			ATR        int     `yaml:"atr"`
		} `yaml:"windows"`

		Thresholds struct {
			Oversold   float64 `yaml:"oversold"`
			Overbought float64 `yaml:"overbought"`
		} `yaml:"thresholds"`
	} `yaml:"pipeline"`

	Source struct {
		Kind     string `yaml:"kind"` // csv | binance | sqlite | synthetic
		Path     string `yaml:"path"` // csv kind
		BaseURL  string `yaml:"base_url"`
		Symbol   string `yaml:"symbol"`
		Interval string `yaml:"interval"`
		Start    string `yaml:"start"` // "2006-01-02" or RFC3339
		End      string `yaml:"end"`
	} `yaml:"source"`

	Export struct {
		CSVPath  string `yaml:"csv_path"`
		JSONPath string `yaml:"json_path"`
	} `yaml:"export"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Notify struct {
		TelegramBotToken string `yaml:"telegram_bot_token"`
		TelegramChatID   string `yaml:"telegram_chat_id"`
		WebhookURL       string `yaml:"webhook_url"`
	} `yaml:"notify"`

	Scan struct {
		Cron      string   `yaml:"cron"` // seconds-precision spec
		Symbols   []string `yaml:"symbols"`
		Intervals []string `yaml:"intervals"`
		Lookback  int      `yaml:"lookback"` // bars fetched per tick
	} `yaml:"scan"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is fine: overrides and defaults
// alone make a runnable config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("SIGNAL_RULE"); v != "" {
		cfg.Pipeline.Rule = v
	}
	if v := os.Getenv("SIGNAL_SYMBOL"); v != "" {
		cfg.Source.Symbol = v
	}
	if v := os.Getenv("SIGNAL_INTERVAL"); v != "" {
		cfg.Source.Interval = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.TelegramChatID = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}

	// Defaults
	if cfg.Pipeline.Rule == "" {
		cfg.Pipeline.Rule = strategy.RuleMeanReversion
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceBinance
	}
	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = "https://api.binance.com"
	}
	if cfg.Source.Symbol == "" {
		cfg.Source.Symbol = "BTCUSDT"
	}
	if cfg.Source.Interval == "" {
		cfg.Source.Interval = "1h"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/signals.db"
	}
	if cfg.Scan.Cron == "" {
		cfg.Scan.Cron = "0 */5 * * * *"
	}
	if len(cfg.Scan.Symbols) == 0 {
		cfg.Scan.Symbols = []string{cfg.Source.Symbol}
	}
	if len(cfg.Scan.Intervals) == 0 {
		cfg.Scan.Intervals = []string{cfg.Source.Interval}
	}
	if cfg.Scan.Lookback == 0 {
		cfg.Scan.Lookback = 200
	}

	return cfg, nil
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if _, err := strategy.New(c.Pipeline.Rule, c.RuleParams()); err != nil {
		return fmt.Errorf("pipeline.rule: %w", err)
	}
	switch c.Source.Kind {
	case SourceCSV:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for the csv source")
		}
	case SourceBinance, SourceSQLite, SourceSynthetic:
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	if _, err := model.ParseInterval(c.Source.Interval); err != nil {
		return fmt.Errorf("source.interval: %w", err)
	}
	if c.Source.Start != "" {
		if _, err := parseDate(c.Source.Start); err != nil {
			return fmt.Errorf("source.start: %w", err)
		}
	}
	if c.Source.End != "" {
		if _, err := parseDate(c.Source.End); err != nil {
			return fmt.Errorf("source.end: %w", err)
		}
	}
	for _, iv := range c.Scan.Intervals {
		if _, err := model.ParseInterval(iv); err != nil {
			return fmt.Errorf("scan.intervals: %w", err)
		}
	}
	return nil
}

// IndicatorParams maps the configured windows, zero fields defaulting.
func (c *Config) IndicatorParams() indicator.Params {
	w := c.Pipeline.Windows
	return indicator.Params{
		Window:     w.SMA,
		BandK:      w.BandK,
		RSIPeriod:  w.RSI,
		MACDFast:   w.MACDFast,
		MACDSlow:   w.MACDSlow,
		MACDSignal: w.MACDSignal,
		ROCPeriod:  w.ROC,
		ATRPeriod:  w.ATR,
	}
}

// RuleParams maps the configured thresholds, zero fields defaulting.
func (c *Config) RuleParams() strategy.Params {
	return strategy.Params{
		Oversold:   c.Pipeline.Thresholds.Oversold,
		Overbought: c.Pipeline.Thresholds.Overbought,
	}
}

// Interval returns the validated source interval.
func (c *Config) Interval() (model.Interval, error) {
	return model.ParseInterval(c.Source.Interval)
}

// Range returns the configured time range; zero times mean open-ended.
func (c *Config) Range() (start, end time.Time, err error) {
	if c.Source.Start != "" {
		if start, err = parseDate(c.Source.Start); err != nil {
			return
		}
	}
	if c.Source.End != "" {
		if end, err = parseDate(c.Source.End); err != nil {
			return
		}
	}
	return
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q (want 2006-01-02 or RFC3339)", s)
	}
	return t.UTC(), nil
}
