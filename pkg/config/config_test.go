package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `environment: test

server:
  port: 9090
  read_timeout: 15s

backend:
  type: clickhouse

scan:
  workers: 4
  batch_size: 8
  batch_pause: 250ms
  timezone: America/New_York
  reference: SPY

kafka:
  brokers:
    - broker-1:9092
    - broker-2:9092
  results_topic: scan.results
  producer:
    linger: 100ms

redis:
  enabled: true
  addr: localhost:6379

providers:
  calendar:
    base_url: http://calendar:8000
    timeout: 10s
  market_data:
    base_url: http://market:8000
    timeout: 10s
    rate: 10
    burst: 20
    quote_ttl: 5s
    expiry_ttl: 15m
    chain_ttl: 30s
  analytics:
    base_url: http://analytics:8000
    retries: 2
  winrate:
    base_url: http://winrate:8001
    retry_backoff: 2s
    breaker_trip: 5
    breaker_timeout: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesFullDocument(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Scan.BatchPause)
	assert.Equal(t, "America/New_York", cfg.Scan.Timezone)
	assert.Equal(t, "SPY", cfg.Scan.Reference)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "scan.results", cfg.Kafka.ResultsTopic)
	assert.Equal(t, 100*time.Millisecond, cfg.Kafka.Producer.Linger)

	// market_data inlines the shared provider block next to its own TTLs.
	assert.Equal(t, "http://market:8000", cfg.Providers.MarketData.BaseURL)
	assert.Equal(t, float64(10), cfg.Providers.MarketData.Rate)
	assert.Equal(t, 20, cfg.Providers.MarketData.Burst)
	assert.Equal(t, 5*time.Second, cfg.Providers.MarketData.QuoteTTL)
	assert.Equal(t, 15*time.Minute, cfg.Providers.MarketData.ExpiryTTL)

	assert.Equal(t, 2, cfg.Providers.Analytics.Retries)
	assert.Equal(t, 5, cfg.Providers.WinRate.BreakerTrip)
	assert.Equal(t, 2*time.Second, cfg.Providers.WinRate.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.Providers.WinRate.BreakerTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "malformed yaml",
			yaml: "{not yaml",
			want: "parse config",
		},
		{
			name: "unknown top-level key",
			yaml: sampleYAML + "\nleftover_section:\n  foo: 1\n",
			want: "parse config",
		},
		{
			name: "missing environment",
			yaml: strings.Replace(sampleYAML, "environment: test", "environment: \"\"", 1),
			want: "environment is required",
		},
		{
			name: "unsupported backend",
			yaml: strings.Replace(sampleYAML, "type: clickhouse", "type: postgres", 1),
			want: "backend.type must be 'kafka' or 'clickhouse'",
		},
		{
			name: "missing calendar base url",
			yaml: strings.Replace(sampleYAML, "base_url: http://calendar:8000", "base_url: \"\"", 1),
			want: "providers.calendar.base_url is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateTreatsWinRateAsOptional(t *testing.T) {
	doc := strings.Replace(sampleYAML, "base_url: http://winrate:8001", "base_url: \"\"", 1)

	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers.WinRate.BaseURL)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("KAFKA_RESULTS_TOPIC", "override.results")
	t.Setenv("REDIS_ADDR", "redis-prod:6379")
	t.Setenv("QUOTE_STREAM_API_KEY", "sekret")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.Backend.Type)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "override.results", cfg.Kafka.ResultsTopic)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "sekret", cfg.QuoteStream.APIKey)
}

func TestLoadWithEnvKeepsFileValuesWhenUnset(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	for _, key := range []string{"BACKEND", "KAFKA_BROKERS", "KAFKA_RESULTS_TOPIC", "REDIS_ADDR", "QUOTE_STREAM_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "clickhouse", cfg.Backend.Type)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}
