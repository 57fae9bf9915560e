package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yml"

// envPaths maps an APP_ENV value to the configuration file used when the
// caller asks for DefaultPath.
var envPaths = map[Environment]string{
	EnvProduction: "config/config.production.yml",
	EnvStaging:    "config/config.staging.yml",
}

type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Binance   BinanceConfig   `yaml:"binance"`
	Retry     RetryConfig     `yaml:"retry"`
	Feed      FeedConfig      `yaml:"feed"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GatewayConfig struct {
	Name           string `yaml:"name"`
	Version        string `yaml:"version"`
	OrderbookDepth int    `yaml:"orderbook_depth"`
	BatchSize      int    `yaml:"batch_size"`
}

type BinanceConfig struct {
	APIKey          string        `yaml:"api_key"`
	APISecret       string        `yaml:"api_secret"`
	SpotURL         string        `yaml:"spot_url"`
	USDTMarginedURL string        `yaml:"usdt_margined_url"`
	CoinMarginedURL string        `yaml:"coin_margined_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RecvWindow      int64         `yaml:"recv_window"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

type FeedConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint"`
	Segment           string        `yaml:"segment"`
	Channels          []string      `yaml:"channels"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	MessagesPerSecond int           `yaml:"messages_per_second"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
}

type MetricsConfig struct {
	Enabled        bool             `yaml:"enabled"`
	Listen         string           `yaml:"listen"`
	UsedWeight     bool             `yaml:"used_weight"`
	FeedFrames     bool             `yaml:"feed_frames"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
	// Optional static keys; the default AWS credential chain is used otherwise.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DashboardConfig controls the HTTP status server.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// ResolvePath returns the environment specific file for DefaultPath, or path
// unchanged when the caller picked another file.
func ResolvePath(path string) string {
	return envPath(path, CurrentEnvironment())
}

func defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			OrderbookDepth: 50,
			BatchSize:      5,
		},
		Binance: BinanceConfig{
			SpotURL:         "https://api.binance.com",
			USDTMarginedURL: "https://fapi.binance.com",
			CoinMarginedURL: "https://dapi.binance.com",
			Timeout:         10 * time.Second,
			RecvWindow:      5000,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			Multiplier:   2,
		},
		Feed: FeedConfig{
			Segment:           "SWPU",
			ReconnectDelay:    5 * time.Second,
			PingInterval:      3 * time.Minute,
			MessagesPerSecond: 5,
		},
		Kafka: KafkaConfig{
			BatchSize:    100,
			BatchTimeout: time.Second,
			BufferSize:   1024,
		},
		Metrics: MetricsConfig{
			Listen:         ":2112",
			UsedWeight:     true,
			FeedFrames:     true,
			ReportInterval: 30 * time.Second,
			CloudWatch: CloudWatchConfig{
				Namespace: "CCGateway",
			},
		},
		Dashboard: DashboardConfig{
			Address:         ":8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if env := CurrentEnvironment(); env.RequiresCredentials() && config.Binance.APIKey == "" {
		return nil, fmt.Errorf("configuration validation failed: binance.api_key is required in %s", env)
	}

	return &config, nil
}

// applyEnv lets credentials and deployment specific values come from the
// environment instead of the checked in file.
func applyEnv(config *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Binance.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Kafka.Brokers = brokers
	}
	if config.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("CLOUDWATCH_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = v
		}
		if v := os.Getenv("CLOUDWATCH_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = v
		}
	}
	config.Kafka.Topic = strings.TrimSpace(config.Kafka.Topic)
}

func validateConfig(cfg *Config) error {
	if cfg.Gateway.Name == "" {
		return fmt.Errorf("gateway.name is required")
	}
	if cfg.Gateway.Version == "" {
		return fmt.Errorf("gateway.version is required")
	}
	if cfg.Gateway.OrderbookDepth <= 0 {
		return fmt.Errorf("gateway.orderbook_depth must be greater than 0")
	}
	if cfg.Gateway.BatchSize <= 0 || cfg.Gateway.BatchSize > 5 {
		return fmt.Errorf("gateway.batch_size must be between 1 and 5")
	}

	for field, raw := range map[string]string{
		"binance.spot_url":          cfg.Binance.SpotURL,
		"binance.usdt_margined_url": cfg.Binance.USDTMarginedURL,
		"binance.coin_margined_url": cfg.Binance.CoinMarginedURL,
	} {
		if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
			return fmt.Errorf("%s must be an http(s) URL", field)
		}
	}
	if cfg.Binance.Timeout <= 0 {
		return fmt.Errorf("binance.timeout must be greater than 0")
	}
	if (cfg.Binance.APIKey == "") != (cfg.Binance.APISecret == "") {
		return fmt.Errorf("binance.api_key and binance.api_secret must be set together")
	}

	if cfg.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be greater than 0")
	}
	if cfg.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be greater than 0")
	}
	if cfg.Retry.Multiplier <= 1 {
		return fmt.Errorf("retry.multiplier must be greater than 1")
	}

	if cfg.Feed.Enabled {
		if !strings.HasPrefix(cfg.Feed.Endpoint, "ws://") && !strings.HasPrefix(cfg.Feed.Endpoint, "wss://") {
			return fmt.Errorf("feed.endpoint must be a websocket URL when the feed is enabled")
		}
		if len(cfg.Feed.Channels) == 0 {
			return fmt.Errorf("feed.channels is required when the feed is enabled")
		}
		if cfg.Feed.ReconnectDelay <= 0 {
			return fmt.Errorf("feed.reconnect_delay must be greater than 0")
		}
		if cfg.Feed.MessagesPerSecond <= 0 {
			return fmt.Errorf("feed.messages_per_second must be greater than 0")
		}
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if !isValidTopic(cfg.Kafka.Topic) {
			return fmt.Errorf("kafka.topic '%s' is invalid", cfg.Kafka.Topic)
		}
		if cfg.Kafka.BufferSize <= 0 {
			return fmt.Errorf("kafka.buffer_size must be greater than 0")
		}
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.RefreshInterval <= 0 {
		return fmt.Errorf("dashboard.refresh_interval must be positive")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Region == "" {
			return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
		}
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
		}
		if (cfg.Metrics.CloudWatch.AccessKeyID == "") != (cfg.Metrics.CloudWatch.SecretAccessKey == "") {
			return fmt.Errorf("metrics.cloudwatch.access_key_id and secret_access_key must be set together")
		}
	}

	return nil
}

var topicRegexp = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

func isValidTopic(name string) bool {
	if name == "" || len(name) > 249 || name == "." || name == ".." {
		return false
	}
	return topicRegexp.MatchString(name)
}
