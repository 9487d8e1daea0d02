package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is a single key/value pair for batch publishing. Value may be
// []byte, string, or anything JSON-marshalable.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer wraps one kafka-go writer shared across topics. The topic is
// set per message.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

// NewProducer builds a writer from the options. Brokers are mandatory.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: brokers are required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	registerProducerMetrics()

	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  parseCompression(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
		compression: cfg.Compression,
	}, nil
}

// Publish writes a single message to the topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  start,
	})
	p.observe(topic, int64(len(payload)), 1, time.Since(start), err)
	return err
}

// PublishBatch writes all messages to the topic in one writer call.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	batch := make([]kafka.Message, 0, len(messages))
	var totalBytes int64
	for _, m := range messages {
		payload, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		batch = append(batch, kafka.Message{
			Topic: topic,
			Key:   m.Key,
			Value: payload,
			Time:  start,
		})
		totalBytes += int64(len(payload))
	}

	err := p.writer.WriteMessages(ctx, batch...)
	p.observe(topic, totalBytes, len(batch), time.Since(start), err)
	return err
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal kafka payload: %w", err)
		}
		return b, nil
	}
}

func parseCompression(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerOnce        sync.Once
	producerMessages    *prometheus.CounterVec
	producerErrors      *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerPublishTime *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerOnce.Do(func() {
		producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "earnscan_kafka_producer_messages_total",
			Help: "Messages published, by topic and result",
		}, []string{"topic", "compression", "result"})
		producerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "earnscan_kafka_producer_errors_total",
			Help: "Failed publishes by topic",
		}, []string{"topic"})
		producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "earnscan_kafka_producer_bytes_total",
			Help: "Published payload bytes by topic",
		}, []string{"topic", "compression"})
		producerPublishTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "earnscan_kafka_producer_publish_seconds",
			Help:    "WriteMessages latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func (p *Producer) observe(topic string, bytes int64, count int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		producerErrors.WithLabelValues(topic).Inc()
	}
	producerMessages.WithLabelValues(topic, p.compression, result).Add(float64(count))
	producerBytes.WithLabelValues(topic, p.compression).Add(float64(bytes))
	producerPublishTime.WithLabelValues(topic).Observe(elapsed.Seconds())
}
