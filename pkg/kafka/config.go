package kafka

import "time"

// ProducerOption mutates the producer config before the writer is built.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds kafka-go writer settings.
type ProducerConfig struct {
	Brokers     []string
	Compression string

	// RequiredAcks mirrors the broker acks setting, -1 waits for all ISRs.
	RequiredAcks int
	MaxAttempts  int
	Async        bool

	// HashByKey routes equal keys to the same partition, which preserves
	// per-symbol ordering downstream.
	HashByKey bool

	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func defaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Compression:  "gzip",
		RequiredAcks: -1,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

// WithBrokers sets the broker addresses.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithCompression selects the payload codec (gzip, snappy, lz4, zstd).
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = compression }
}

// WithRequiredAcks sets the acknowledgement level, -1 for all replicas.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

// WithMaxAttempts bounds writer retries.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

// WithBatchSize caps messages per batch.
func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = size }
}

// WithBatchBytes caps aggregate bytes per batch.
func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = bytes }
}

// WithBatchTimeout sets how long a partial batch may linger.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = timeout }
}

// WithTimeouts sets writer write and read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync makes writes fire-and-forget.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey switches from least-bytes to hash partitioning.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = hash }
}

// ConsumerOption mutates the consumer config before readers are built.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds reader, worker pool and retry settings.
type ConsumerConfig struct {
	Brokers []string
	GroupID string

	Workers    int
	BufferSize int

	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration

	// DLQTopic receives messages that exhausted their retries. Empty
	// disables dead lettering.
	DLQTopic string

	MinBytes int
	MaxBytes int
}

func defaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		GroupID:    "default",
		Workers:    1,
		BufferSize: 10,
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   10e3,
		MaxBytes:   10e6,
	}
}

// WithConsumerBrokers sets the broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets the handler pool size.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) { c.Workers = count }
}

// WithConsumerBufferSize sets the worker queue capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerRetry configures handler retries and the backoff window.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ names the dead letter topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch sets reader fetch min and max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}
