package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFeedURL = "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx"
	DefaultSymbol  = "BTC-USDT-SWAP"
)

type Config struct {
	Tradesim  TradesimConfig  `yaml:"tradesim"`
	Feed      FeedConfig      `yaml:"feed"`
	Queue     QueueConfig     `yaml:"queue"`
	Engine    EngineConfig    `yaml:"engine"`
	Fees      FeesConfig      `yaml:"fees"`
	Symbols   SymbolsConfig   `yaml:"symbols"`
	Session   SessionConfig   `yaml:"session"`
	Publisher PublisherConfig `yaml:"publisher"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type TradesimConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FeedConfig tunes the websocket feed client.
type FeedConfig struct {
	URL              string        `yaml:"url"`
	UserAgent        string        `yaml:"user_agent"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	// DecodeWarnPerSecond limits how often malformed messages are logged.
	DecodeWarnPerSecond float64 `yaml:"decode_warn_per_second"`
	DecodeWarnBurst     int     `yaml:"decode_warn_burst"`
}

// QueueConfig selects the hand-off queue flavour. Capacity 0 means unbounded;
// a positive capacity drops the oldest snapshot when full.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type EngineConfig struct {
	PermanentImpact float64          `yaml:"permanent_impact"`
	TemporaryImpact float64          `yaml:"temporary_impact"`
	LiquidityLevels int              `yaml:"liquidity_levels"`
	MaxDepthLevels  int              `yaml:"max_depth_levels"`
	TradingDays     float64          `yaml:"trading_days"`
	MaxLatency      time.Duration    `yaml:"max_latency"`
	MakerCurve      MakerCurveConfig `yaml:"maker_curve"`
}

// MakerCurveConfig parameterises the logistic response
// p = 1 / (1 + exp(steepness * (relSpread - midpoint))).
type MakerCurveConfig struct {
	Steepness float64 `yaml:"steepness"`
	Midpoint  float64 `yaml:"midpoint"`
}

type SymbolsConfig struct {
	Default   string   `yaml:"default"`
	Supported []string `yaml:"supported"`
}

// SessionConfig holds the parameters used when a session is started without
// explicit input (autostart or a partial API request).
type SessionConfig struct {
	AutoStart   bool    `yaml:"auto_start"`
	Symbol      string  `yaml:"symbol"`
	QuantityUSD float64 `yaml:"quantity_usd"`
	Volatility  float64 `yaml:"volatility"`
	FeeTier     string  `yaml:"fee_tier"`
	FeeRate     float64 `yaml:"fee_rate"`
}

type PublisherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	// Address serves /metrics on its own listener when the dashboard is off.
	Address    string           `yaml:"address"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// KafkaConfig enables publishing every new result to a topic keyed by symbol.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type LoggingConfig struct {
	Level          string        `yaml:"level"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	MaxAge         int           `yaml:"max_age"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// Default returns a configuration populated with the built-in defaults. The
// YAML file only needs to override what differs.
func Default() *Config {
	return &Config{
		Tradesim: TradesimConfig{Name: "tradesim", Version: "dev"},
		Feed: FeedConfig{
			URL:                 DefaultFeedURL,
			UserAgent:           "tradesim/1.0",
			ReconnectDelay:      5 * time.Second,
			PingInterval:        20 * time.Second,
			PongTimeout:         10 * time.Second,
			HandshakeTimeout:    10 * time.Second,
			StopTimeout:         5 * time.Second,
			ReadBufferSize:      4096,
			DecodeWarnPerSecond: 1,
			DecodeWarnBurst:     5,
		},
		Engine: EngineConfig{
			PermanentImpact: 0.1,
			TemporaryImpact: 0.1,
			LiquidityLevels: 5,
			TradingDays:     252,
			MaxLatency:      50 * time.Millisecond,
			MakerCurve:      MakerCurveConfig{Steepness: 400, Midpoint: 0.005},
		},
		Fees: FeesConfig{
			DefaultTier: "VIP0",
			Tiers: map[string]FeeTier{
				"VIP0": {Maker: 0.0002, Taker: 0.0005},
				"VIP1": {Maker: 0.00018, Taker: 0.00045},
				"VIP2": {Maker: 0.00016, Taker: 0.0004},
			},
		},
		Symbols: SymbolsConfig{
			Default:   DefaultSymbol,
			Supported: []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP", "SOL-USDT-SWAP", "XRP-USDT-SWAP"},
		},
		Session: SessionConfig{
			Symbol:      DefaultSymbol,
			QuantityUSD: 100,
			Volatility:  0.5,
			FeeTier:     "VIP0",
		},
		Publisher: PublisherConfig{Interval: 100 * time.Millisecond},
		Metrics: MetricsConfig{
			Prometheus: true,
			Address:    "0.0.0.0:2112",
			CloudWatch: CloudWatchConfig{Namespace: "Tradesim"},
		},
		Dashboard: DashboardConfig{
			Address:         "0.0.0.0:8080",
			RefreshInterval: 5 * time.Second,
			LogHistory:      200,
			MetricsHistory:  200,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "tradesim",
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "tradesim.results",
			BatchTimeout: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			MaxAge:         7,
			ReportInterval: 30 * time.Second,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TRADESIM_FEED_URL"); v != "" {
		config.Feed.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Redis.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
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
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
	}
	config.Feed.URL = strings.TrimRight(config.Feed.URL, "/")
}

// Validate checks a configuration that was built in code rather than loaded
// from a file.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateConfig(cfg *Config) error {
	if cfg.Tradesim.Name == "" {
		return fmt.Errorf("tradesim.name is required")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if !strings.HasPrefix(cfg.Feed.URL, "ws://") && !strings.HasPrefix(cfg.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url '%s' must use ws:// or wss://", cfg.Feed.URL)
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than 0")
	}
	if cfg.Feed.PingInterval <= 0 {
		return fmt.Errorf("feed.ping_interval must be greater than 0")
	}
	if cfg.Feed.PongTimeout <= 0 {
		return fmt.Errorf("feed.pong_timeout must be greater than 0")
	}
	if cfg.Feed.StopTimeout <= 0 {
		return fmt.Errorf("feed.stop_timeout must be greater than 0")
	}

	if cfg.Queue.Capacity < 0 {
		return fmt.Errorf("queue.capacity must not be negative")
	}

	if cfg.Engine.PermanentImpact < 0 || cfg.Engine.TemporaryImpact < 0 {
		return fmt.Errorf("engine impact coefficients must not be negative")
	}
	if cfg.Engine.LiquidityLevels <= 0 {
		return fmt.Errorf("engine.liquidity_levels must be greater than 0")
	}
	if cfg.Engine.MaxDepthLevels < 0 {
		return fmt.Errorf("engine.max_depth_levels must not be negative")
	}
	if cfg.Engine.TradingDays <= 0 {
		return fmt.Errorf("engine.trading_days must be greater than 0")
	}
	if cfg.Engine.MakerCurve.Steepness <= 0 {
		return fmt.Errorf("engine.maker_curve.steepness must be greater than 0")
	}

	if err := cfg.Fees.validate(); err != nil {
		return err
	}

	if len(cfg.Symbols.Supported) == 0 {
		return fmt.Errorf("symbols.supported must list at least one symbol")
	}
	if cfg.Symbols.Default != "" && !cfg.Symbols.IsSupported(cfg.Symbols.Default) {
		return fmt.Errorf("symbols.default '%s' is not in symbols.supported", cfg.Symbols.Default)
	}

	if cfg.Publisher.Interval <= 0 {
		return fmt.Errorf("publisher.interval must be greater than 0")
	}

	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}
	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when cloudwatch is enabled")
	}

	return nil
}

// IsSupported reports whether the symbol is in the supported list.
func (s SymbolsConfig) IsSupported(symbol string) bool {
	for _, sym := range s.Supported {
		if sym == symbol {
			return true
		}
	}
	return false
}
