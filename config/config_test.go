package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a config file in a test directory and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

const minimalConfig = `gateway:
  name: "TestGateway"
  version: "1.0"
`

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Gateway.Name != "TestGateway" {
		t.Errorf("unexpected name: %s", cfg.Gateway.Name)
	}
	if cfg.Gateway.OrderbookDepth != 50 || cfg.Gateway.BatchSize != 5 {
		t.Errorf("unexpected gateway defaults: %+v", cfg.Gateway)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.InitialDelay != time.Second || cfg.Retry.Multiplier != 2 {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Feed.ReconnectDelay != 5*time.Second {
		t.Errorf("unexpected reconnect delay: %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Binance.USDTMarginedURL != "https://fapi.binance.com" {
		t.Errorf("unexpected usdt url: %s", cfg.Binance.USDTMarginedURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("BINANCE_API_KEY", " key ")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	content := minimalConfig + `retry:
  max_attempts: 3
  initial_delay: 250ms
kafka:
  enabled: true
  topic: candles.closed
feed:
  enabled: true
  endpoint: wss://fstream.binance.com/stream
  channels: ["btcusdt@kline_1m"]
`
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Binance.APIKey != "key" || cfg.Binance.APISecret != "secret" {
		t.Errorf("credentials not taken from env: %q %q", cfg.Binance.APIKey, cfg.Binance.APISecret)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != 250*time.Millisecond || cfg.Retry.Multiplier != 2 {
		t.Errorf("unexpected retry: %+v", cfg.Retry)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"name", func(c *Config) { c.Gateway.Name = "" }, "gateway.name"},
		{"batch", func(c *Config) { c.Gateway.BatchSize = 6 }, "gateway.batch_size"},
		{"url", func(c *Config) { c.Binance.SpotURL = "api.binance.com" }, "binance.spot_url"},
		{"half credentials", func(c *Config) { c.Binance.APIKey = "k" }, "binance.api_key"},
		{"multiplier", func(c *Config) { c.Retry.Multiplier = 1 }, "retry.multiplier"},
		{"feed endpoint", func(c *Config) {
			c.Feed.Enabled = true
			c.Feed.Endpoint = "https://example.com"
		}, "feed.endpoint"},
		{"feed channels", func(c *Config) {
			c.Feed.Enabled = true
			c.Feed.Endpoint = "wss://example.com"
		}, "feed.channels"},
		{"kafka brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"kafka topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = []string{"k:9092"}
			c.Kafka.Topic = "bad topic"
		}, "kafka.topic"},
		{"cloudwatch region", func(c *Config) { c.Metrics.CloudWatch.Enabled = true }, "metrics.cloudwatch.region"},
		{"cloudwatch half keys", func(c *Config) {
			c.Metrics.CloudWatch.Enabled = true
			c.Metrics.CloudWatch.Region = "eu-central-1"
			c.Metrics.CloudWatch.AccessKeyID = "AKIA"
		}, "metrics.cloudwatch.access_key_id"},
		{"dashboard refresh", func(c *Config) {
			c.Dashboard.Enabled = true
			c.Dashboard.RefreshInterval = 0
		}, "dashboard.refresh_interval"},
	}
	for _, c := range cases {
		cfg := defaults()
		cfg.Gateway.Name = "gw"
		cfg.Gateway.Version = "1"
		c.mutate(&cfg)
		err := validateConfig(&cfg)
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: err=%v, want mention of %s", c.name, err, c.want)
		}
	}
}

func TestIsValidTopic(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"candles", true},
		{"candles.closed_v1-2", true},
		{"", false},
		{"..", false},
		{"with space", false},
		{strings.Repeat("a", 250), false},
	}
	for _, c := range cases {
		if got := isValidTopic(c.name); got != c.valid {
			t.Errorf("isValidTopic(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath(DefaultPath); got != "config/config.production.yml" {
		t.Errorf("ResolvePath(default) = %s", got)
	}
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Errorf("ResolvePath(custom) = %s", got)
	}
	t.Setenv("APP_ENV", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath(empty) = %s", got)
	}
}

func TestCurrentEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"":            EnvDevelopment,
		" PROD ":      EnvProduction,
		"stage":       EnvStaging,
		"development": EnvDevelopment,
		"qa":          Environment("qa"),
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := CurrentEnvironment(); got != want {
			t.Errorf("CurrentEnvironment(%q) = %s, want %s", in, got, want)
		}
	}
	if !EnvStaging.RequiresCredentials() || EnvDevelopment.RequiresCredentials() {
		t.Errorf("RequiresCredentials mismatch")
	}
}

func TestProductionRequiresCredentials(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := LoadConfig(writeTempConfig(t, minimalConfig))
	if err == nil || !strings.Contains(err.Error(), "binance.api_key") {
		t.Fatalf("err=%v, want missing credentials", err)
	}
}
