package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"signalbot/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Instruments and polling
	Symbols   string `envconfig:"SYMBOLS" default:"BTC/USDT,ETH/USDT,BNB/USDT,SOL/USDT,XRP/USDT"`
	Timeframe string `envconfig:"TIMEFRAME" default:"1h"`
	BarLimit  int    `envconfig:"BAR_LIMIT" default:"150"`

	// Cycles
	ReportInterval        time.Duration `envconfig:"REPORT_INTERVAL" default:"1h"`
	ReportFirstDelay      time.Duration `envconfig:"REPORT_FIRST_DELAY" default:"1s"`
	ReportInstrumentDelay time.Duration `envconfig:"REPORT_INSTRUMENT_DELAY" default:"2s"`
	AlertInterval         time.Duration `envconfig:"ALERT_INTERVAL" default:"30m"`
	AlertFirstDelay       time.Duration `envconfig:"ALERT_FIRST_DELAY" default:"5s"`
	AlertInstrumentDelay  time.Duration `envconfig:"ALERT_INSTRUMENT_DELAY" default:"1s"`
	CycleTimeout          time.Duration `envconfig:"CYCLE_TIMEOUT" default:"10m"`

	// Exchange and news
	BinanceBaseURL   string `envconfig:"BINANCE_BASE_URL" default:"https://fapi.binance.com"`
	CryptoPanicToken string `envconfig:"CRYPTOPANIC_TOKEN"`
	NewsCount        int    `envconfig:"NEWS_COUNT" default:"5"`

	// Notification
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID string `envconfig:"TELEGRAM_CHAT_ID"`
	WebhookURL     string `envconfig:"WEBHOOK_URL"`

	// Infrastructure
	RedisAddr          string `envconfig:"REDIS_ADDR"`
	RedisPassword      string `envconfig:"REDIS_PASSWORD"`
	RedisDB            int    `envconfig:"REDIS_DB" default:"0"`
	RestoreAlertMemory bool   `envconfig:"RESTORE_ALERT_MEMORY" default:"false"`
	// JournalDSN is a sqlite file path or a postgres:// URL; empty disables
	// the journal. SQLITE_PATH is accepted as an alias.
	JournalDSN  string `envconfig:"JOURNAL_DSN"`
	SQLitePath  string `envconfig:"SQLITE_PATH"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from environment variables, after loading a .env
// file if one exists.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.JournalDSN == "" {
		cfg.JournalDSN = cfg.SQLitePath
	}
	if _, err := cfg.Resolution(); err != nil {
		return nil, err
	}
	if _, err := cfg.Instruments(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Instruments parses Symbols in configured order. Invalid and duplicate
// entries are skipped with a warning; an empty result is an error.
func (c *Config) Instruments() ([]model.Instrument, error) {
	parts := strings.Split(c.Symbols, ",")
	out := make([]model.Instrument, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		inst, err := model.ParseInstrument(p)
		if err != nil {
			slog.Warn("skipping invalid symbol", "symbol", p, "error", err)
			continue
		}
		if seen[inst.Symbol()] {
			continue
		}
		seen[inst.Symbol()] = true
		out = append(out, inst)
	}
	if len(out) == 0 {
		return nil, errors.New("config: SYMBOLS has no valid instrument")
	}
	return out, nil
}

// Resolution returns the polling bar interval.
func (c *Config) Resolution() (model.Resolution, error) {
	res, err := model.ParseResolution(c.Timeframe)
	if err != nil {
		return "", fmt.Errorf("config: TIMEFRAME: %w", err)
	}
	return res, nil
}
