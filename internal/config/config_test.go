package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lasersell-stream/internal/proto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	unsetOverrides(t)
	cfg, err := Load(writeConfig(t, "session:\n  wallets: [\"11111111111111111111111111111111\"]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Stream.PingInterval != 15*time.Second {
		t.Fatalf("expected ping interval default, got %v", cfg.Stream.PingInterval)
	}
	if cfg.Session.DeadlineTimeout != 45*time.Second {
		t.Fatalf("expected deadline default, got %v", cfg.Session.DeadlineTimeout)
	}
	if !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Kafka.Topic == "" {
		t.Fatalf("expected kafka topic default")
	}
	if cfg.Timescale.Schema != "public" || cfg.Timescale.QueueSize != 256 {
		t.Fatalf("unexpected timescale defaults: %+v", cfg.Timescale)
	}
	if got := cfg.Mock.Limits.Limits(); got.HiCapacity != 256 || got.PnlFlushMS != 100 {
		t.Fatalf("unexpected mock limits: %+v", got)
	}
}

func TestMetricsCanBeDisabled(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Enabled: new(bool)}}
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics to stay disabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	unsetOverrides(t)
	t.Setenv("STREAM_URL", "wss://stream.example.com/v1/ws")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	cfg, err := Load(writeConfig(t, "stream:\n  url: ws://localhost:1/ws\nkafka:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.URL != "wss://stream.example.com/v1/ws" {
		t.Fatalf("expected env stream url, got %q", cfg.Stream.URL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "a:9092" || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]*Config{
		"http url":         {Stream: StreamConfig{URL: "http://localhost/ws"}},
		"bad format":       {Log: LoggingConfig{Format: "xml"}},
		"empty wallet":     {Session: SessionConfig{Wallets: []string{"A", " "}}},
		"kafka no broker":  {Kafka: KafkaConfig{Enabled: true}},
		"negative ping":    {Stream: StreamConfig{PingInterval: -time.Second}},
		"client event":     {Telegram: TelegramConfig{Events: []string{"sell_now"}}},
		"timescale no dsn": {Timescale: TimescaleConfig{Enabled: true}},
		"timescale schema": {Timescale: TimescaleConfig{Schema: "public; drop table x"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			applyDefaults(cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSessionConfigure(t *testing.T) {
	session := SessionConfig{
		Wallets:         []string{"A", "B"},
		TargetProfitPct: 5,
		StopLossPct:     1.5,
		DeadlineTimeout: 45 * time.Second,
	}
	got := session.Configure()
	want := proto.Configure{
		WalletPubkeys: []string{"A", "B"},
		Strategy:      proto.StrategyConfig{TargetProfitPct: 5, StopLossPct: 1.5, DeadlineTimeoutSec: 45},
	}
	if len(got.WalletPubkeys) != 2 || got.WalletPubkeys[1] != "B" || got.Strategy != want.Strategy {
		t.Fatalf("unexpected configure: %+v", got)
	}
	if _, err := proto.EncodeClientMessage(got); err != nil {
		t.Fatalf("encode configure: %v", err)
	}

	data, err := proto.EncodeClientMessage(SessionConfig{}.Configure())
	if err != nil {
		t.Fatalf("encode empty configure: %v", err)
	}
	if !strings.Contains(string(data), `"wallet_pubkeys":[]`) {
		t.Fatalf("expected empty wallet array, got %s", data)
	}
}
