package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lasersell-stream/internal/proto"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Stream    StreamConfig    `yaml:"stream"`
	Session   SessionConfig   `yaml:"session"`
	Journal   JournalConfig   `yaml:"journal"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Mock      MockConfig      `yaml:"mock"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

// TimescaleConfig enables the postgres sink for position events.
type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// TelegramConfig enables chat alerts for the listed server event types.
type TelegramConfig struct {
	Enabled bool     `yaml:"enabled"`
	Token   string   `yaml:"token"`
	ChatID  string   `yaml:"chat_id"`
	Events  []string `yaml:"events"`
	// APIURL points at a self-hosted Bot API server; empty uses api.telegram.org.
	APIURL  string   `yaml:"api_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StreamConfig struct {
	URL                 string        `yaml:"url"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	StrictMarketContext bool          `yaml:"strict_market_context"`
}

// SessionConfig is sent to the server as the configure command.
type SessionConfig struct {
	Wallets         []string      `yaml:"wallets"`
	TargetProfitPct float64       `yaml:"target_profit_pct"`
	StopLossPct     float64       `yaml:"stop_loss_pct"`
	DeadlineTimeout time.Duration `yaml:"deadline_timeout"`
}

func (s SessionConfig) Configure() proto.Configure {
	return proto.Configure{
		WalletPubkeys: append([]string(nil), s.Wallets...),
		Strategy: proto.StrategyConfig{
			TargetProfitPct:    s.TargetProfitPct,
			StopLossPct:        s.StopLossPct,
			DeadlineTimeoutSec: uint64(s.DeadlineTimeout / time.Second),
		},
	}
}

type JournalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

// MockConfig drives cmd/streammock.
type MockConfig struct {
	Addr            string        `yaml:"addr"`
	Fixture         string        `yaml:"fixture"`
	FixtureInterval time.Duration `yaml:"fixture_interval"`
	SessionID       uint64        `yaml:"session_id"`
	Limits          MockLimits    `yaml:"limits"`
}

type MockLimits struct {
	HiCapacity             uint32        `yaml:"hi_capacity"`
	PnlFlush               time.Duration `yaml:"pnl_flush"`
	MaxPositionsPerSession uint32        `yaml:"max_positions_per_session"`
	MaxWalletsPerSession   uint32        `yaml:"max_wallets_per_session"`
	MaxPositionsPerWallet  uint32        `yaml:"max_positions_per_wallet"`
	MaxSessionsPerAPIKey   uint32        `yaml:"max_sessions_per_api_key"`
}

func (l MockLimits) Limits() proto.Limits {
	return proto.Limits{
		HiCapacity:             l.HiCapacity,
		PnlFlushMS:             uint64(l.PnlFlush / time.Millisecond),
		MaxPositionsPerSession: l.MaxPositionsPerSession,
		MaxWalletsPerSession:   l.MaxWalletsPerSession,
		MaxPositionsPerWallet:  l.MaxPositionsPerWallet,
		MaxSessionsPerAPIKey:   l.MaxSessionsPerAPIKey,
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Stream.URL == "" {
		cfg.Stream.URL = "ws://127.0.0.1:8787/v1/ws"
	}
	if cfg.Stream.PingInterval == 0 {
		cfg.Stream.PingInterval = 15 * time.Second
	}
	if cfg.Stream.ConnectTimeout == 0 {
		cfg.Stream.ConnectTimeout = 10 * time.Second
	}
	if cfg.Session.DeadlineTimeout == 0 {
		cfg.Session.DeadlineTimeout = 45 * time.Second
	}
	if cfg.Journal.SQLitePath == "" {
		cfg.Journal.SQLitePath = "data/lasersell-stream.db"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "lasersell.stream.events"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9108"
	}
	if len(cfg.Telegram.Events) == 0 {
		cfg.Telegram.Events = []string{proto.TypeExitSignalWithTx, proto.TypePositionClosed, proto.TypeError}
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize <= 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Mock.Addr == "" {
		cfg.Mock.Addr = "127.0.0.1:8787"
	}
	if cfg.Mock.FixtureInterval == 0 {
		cfg.Mock.FixtureInterval = 250 * time.Millisecond
	}
	if cfg.Mock.SessionID == 0 {
		cfg.Mock.SessionID = 1
	}
	if cfg.Mock.Limits.HiCapacity == 0 {
		cfg.Mock.Limits.HiCapacity = 256
	}
	if cfg.Mock.Limits.PnlFlush == 0 {
		cfg.Mock.Limits.PnlFlush = 100 * time.Millisecond
	}
	if cfg.Mock.Limits.MaxPositionsPerSession == 0 {
		cfg.Mock.Limits.MaxPositionsPerSession = 256
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}
	u, err := url.Parse(cfg.Stream.URL)
	if err != nil {
		return fmt.Errorf("stream.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream.url must use ws or wss, got %q", u.Scheme)
	}
	if cfg.Stream.PingInterval < 0 {
		return errors.New("stream.ping_interval must be >= 0")
	}
	for i, wallet := range cfg.Session.Wallets {
		if strings.TrimSpace(wallet) == "" {
			return fmt.Errorf("session.wallets[%d] is empty", i)
		}
	}
	if cfg.Session.DeadlineTimeout < 0 {
		return errors.New("session.deadline_timeout must be >= 0")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if !validIdentifier(cfg.Timescale.Schema) {
		return fmt.Errorf("timescale.schema must be a plain identifier, got %q", cfg.Timescale.Schema)
	}
	for _, event := range cfg.Telegram.Events {
		if _, ok := proto.ResolveServerTag(event); !ok {
			return fmt.Errorf("telegram.events: unknown server event %q", event)
		}
	}
	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
