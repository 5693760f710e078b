package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// envOverrides are the deployment variables that replace config file values.
// Secrets and endpoints usually come from the environment or a .env file.
var envOverrides = []struct {
	key   string
	apply func(cfg *Config, value string)
}{
	{"STREAM_URL", func(cfg *Config, v string) { cfg.Stream.URL = v }},
	{"KAFKA_BROKERS", func(cfg *Config, v string) { cfg.Kafka.Brokers = splitList(v) }},
	{"TELEGRAM_BOT_TOKEN", func(cfg *Config, v string) { cfg.Telegram.Token = v }},
	{"TELEGRAM_CHAT_ID", func(cfg *Config, v string) { cfg.Telegram.ChatID = v }},
	{"TIMESCALE_DSN", func(cfg *Config, v string) { cfg.Timescale.DSN = v }},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			o.apply(cfg, v)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// LoadWithEnv exports envPath into the process environment and then loads the
// config file, so .env entries override the file the same way real variables do.
func LoadWithEnv(path, envPath string) (*Config, error) {
	if envPath != "" {
		if err := LoadEnv(envPath); err != nil {
			return nil, err
		}
	}
	return Load(path)
}

// LoadEnv sets the variables of a .env file that are not already set. A
// missing file is not an error.
func LoadEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	vars, err := parseEnv(file)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, v := range vars {
		if _, exists := os.LookupEnv(v.key); exists {
			continue
		}
		if err := os.Setenv(v.key, v.value); err != nil {
			return err
		}
	}
	return nil
}

type envVar struct {
	key   string
	value string
}

// parseEnv reads KEY=value lines. Blank lines and # comments are skipped, an
// "export " prefix is allowed, and one pair of matching quotes is stripped.
func parseEnv(r io.Reader) ([]envVar, error) {
	var out []envVar
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(text, "export ")
		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("line %d: expected KEY=value", line)
		}
		out = append(out, envVar{key: key, value: unquote(strings.TrimSpace(value))})
	}
	return out, scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
