package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, one named section per subsystem.
type Config struct {
	Environment string            `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Backend     BackendConfig     `yaml:"backend"`
	Scan        ScanConfig        `yaml:"scan"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Redis       RedisConfig       `yaml:"redis"`
	Queue       QueueConfig       `yaml:"queue"`
	QuoteStream QuoteStreamConfig `yaml:"quote_stream"`
	Providers   ProvidersConfig   `yaml:"providers"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BackendConfig selects where finished scan results go: "clickhouse" writes
// them directly, "kafka" publishes them for the ingest consumer.
type BackendConfig struct {
	Type string `yaml:"type"`
}

type ScanConfig struct {
	Workers          int           `yaml:"workers"` // 0 = batched sequential
	BatchSize        int           `yaml:"batch_size"`
	BatchPause       time.Duration `yaml:"batch_pause"`
	CandidateTimeout time.Duration `yaml:"candidate_timeout"`
	CalendarTimeout  time.Duration `yaml:"calendar_timeout"`
	ExportDir        string        `yaml:"export_dir"`
	Timezone         string        `yaml:"timezone"`  // market clock, default America/New_York
	Reference        string        `yaml:"reference"` // threshold reference index, default SPY
}

type KafkaConfig struct {
	Brokers      []string            `yaml:"brokers"`
	ResultsTopic string              `yaml:"results_topic"`
	LogsTopic    string              `yaml:"logs_topic"`
	RequiredAcks int                 `yaml:"required_acks"`
	Compression  string              `yaml:"compression"`
	Producer     KafkaProducerConfig `yaml:"producer"`
	Consumer     KafkaConsumerConfig `yaml:"consumer"`
}

type KafkaProducerConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Linger       time.Duration `yaml:"linger"`
	BatchBytes   int           `yaml:"batch_bytes"`
	BatchSize    int           `yaml:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumerConfig struct {
	GroupID    string        `yaml:"group_id"`
	Workers    int           `yaml:"workers"`
	BufferSize int           `yaml:"buffer_size"`
	RetryMax   int           `yaml:"retry_max"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
	DLQTopic   string        `yaml:"dlq_topic"`
	MinBytes   int           `yaml:"min_bytes"`
	MaxBytes   int           `yaml:"max_bytes"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers"`
	RetryLimit int           `yaml:"retry_limit"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	KeyPrefix  string        `yaml:"key_prefix"`
}

type QuoteStreamConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type ProvidersConfig struct {
	Calendar   ProviderConfig   `yaml:"calendar"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Analytics  ProviderConfig   `yaml:"analytics"`
	WinRate    WinRateConfig    `yaml:"winrate"`
}

// MarketDataConfig extends the shared provider block with cache TTLs for the
// three fetch kinds.
type MarketDataConfig struct {
	ProviderConfig `yaml:",inline"`
	QuoteTTL       time.Duration `yaml:"quote_ttl"`
	ExpiryTTL      time.Duration `yaml:"expiry_ttl"`
	ChainTTL       time.Duration `yaml:"chain_ttl"`
}

// WinRateConfig extends the shared provider block with retry and circuit
// breaker tuning for the flaky historical stats service.
type WinRateConfig struct {
	ProviderConfig `yaml:",inline"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	BreakerTrip    int           `yaml:"breaker_trip"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
}

// ProviderConfig is the shared per-provider HTTP client block.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Rate    float64       `yaml:"rate"`  // requests per second
	Burst   int           `yaml:"burst"` // token bucket size
	Retries int           `yaml:"retries"`
}

// Load reads a YAML configuration file. Unknown keys are rejected so typos
// surface at startup instead of silently falling back to zero values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_RESULTS_TOPIC"); v != "" {
		c.Kafka.ResultsTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("QUOTE_STREAM_API_KEY"); v != "" {
		c.QuoteStream.APIKey = v
	}

	return c, nil
}

// Validate checks the fields the process cannot run without. The winrate
// provider is deliberately absent: without a base URL the neutral-default
// provider takes over.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "kafka", "clickhouse":
	case "":
		return fmt.Errorf("backend.type is required")
	default:
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}

	required := []struct {
		key string
		val string
	}{
		{"providers.calendar.base_url", c.Providers.Calendar.BaseURL},
		{"providers.market_data.base_url", c.Providers.MarketData.BaseURL},
		{"providers.analytics.base_url", c.Providers.Analytics.BaseURL},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	return nil
}
