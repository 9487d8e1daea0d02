package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

const (
	readPollTimeout = 3 * time.Second
	commitAttempts  = 3
	commitTimeout   = 2 * time.Second
)

var errConsumerStopped = errors.New("consumer stopped")

// Consumer reads registered topics through a shared worker pool. Handling is
// serialized per (topic, partition) so offsets commit in order.
type Consumer struct {
	cfg      *ConsumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	queue    chan *inflight
	stop     chan struct{}
	stopOnce sync.Once
	readerWg sync.WaitGroup
	workerWg sync.WaitGroup

	mu        sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	hook ConsumerHook
}

type inflight struct {
	topic   string
	payload []byte
	raw     kafka.Message
}

// NewConsumer builds a consumer from the options. Brokers are mandatory;
// readers are created per registered topic when Start runs.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		queue:     make(chan *inflight, cfg.BufferSize),
		stop:      make(chan struct{}),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	registerConsumerMetrics()
	return c, nil
}

// RegisterHandler binds a handler to its topic. The first registration wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, dup := c.handlers[topic]; dup {
		log.Printf("kafka consumer: duplicate handler for topic %s ignored", topic)
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook installs a lifecycle hook. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start spawns the worker pool and one reader goroutine per topic.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.workerWg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.readerWg.Add(1)
		go c.readLoop(topic, reader)
	}

	log.Printf("kafka consumer: started topics=%d workers=%d group=%s",
		len(c.readers), c.cfg.Workers, c.cfg.GroupID)
	return nil
}

// Stop drains readers first, then workers, then closes readers and the DLQ
// writer. Returns the context error when shutdown exceeds the deadline.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stop)

		// Readers must be down before the queue closes or they could
		// send on a closed channel.
		if stopErr = waitGroup(ctx, &c.readerWg); stopErr == nil {
			close(c.queue)
			stopErr = waitGroup(ctx, &c.workerWg)
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				log.Printf("kafka consumer: close reader topic=%s: %v", topic, err)
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				log.Printf("kafka consumer: close dlq writer: %v", err)
			}
		}
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("stop kafka consumer: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.readerWg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), readPollTimeout)
		km, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: read topic=%s: %v", topic, err)
			}
			continue
		}

		if !c.enqueue(&inflight{topic: topic, payload: km.Value, raw: km}) {
			return
		}
	}
}

// enqueue blocks until the message is queued or shutdown begins. When the
// queue runs hot it backs off instead of dropping.
func (c *Consumer) enqueue(m *inflight) bool {
	for {
		select {
		case c.queue <- m:
			consumerQueueDepth.WithLabelValues(m.topic).Set(float64(len(c.queue)))
			consumerQueueFill.WithLabelValues(m.topic).Set(fillRatio(len(c.queue), cap(c.queue)))
			return true
		case <-c.stop:
			return false
		default:
			fill := fillRatio(len(c.queue), cap(c.queue))
			consumerQueueFill.WithLabelValues(m.topic).Set(fill)
			if fill > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func fillRatio(n, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(n) / float64(capacity)
}

func (c *Consumer) worker() {
	defer c.workerWg.Done()

	for m := range c.queue {
		handler, ok := c.handlers[m.topic]
		if !ok {
			continue
		}
		c.process(handler, m)
	}
}

// process runs one message through the retry loop. A lock per
// (topic, partition) keeps at most one message of a partition in flight.
func (c *Consumer) process(handler MessageHandler, m *inflight) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: panic handling topic=%s: %v", m.topic, r)
		}
	}()

	lock := c.partitionLock(m.topic, m.raw.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := c.handleWithRetry(handler, m)
	if errors.Is(err, errConsumerStopped) {
		// No commit: the message is redelivered after restart.
		return
	}
	if err != nil {
		c.hook.OnError(context.Background(), m.topic, m.raw, m.payload, err)
		log.Printf("kafka consumer: giving up topic=%s partition=%d offset=%d: %v",
			m.topic, m.raw.Partition, m.raw.Offset, err)
		c.deadLetter(m)
	}

	// Commit on success, or after dead lettering so a poison message
	// cannot wedge the partition.
	if err == nil || c.dlq != nil {
		if reader := c.readers[m.topic]; reader != nil {
			_ = c.commitWithRetry(reader, m.raw)
		}
	}
	consumerHandleTime.WithLabelValues(m.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, m *inflight) error {
	for attempt := 1; ; attempt++ {
		hctx, hmsg, hdata, err := c.hook.BeforeHandle(context.Background(), m.topic, m.raw, m.payload)
		if err != nil {
			return err
		}

		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, m.topic, hmsg, hdata, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}

		c.hook.OnError(hctx, m.topic, hmsg, hdata, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stop:
			return errConsumerStopped
		}
	}
}

func (c *Consumer) deadLetter(m *inflight) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   m.payload,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq publish topic=%s: %v", c.cfg.DLQTopic, err)
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message) error {
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		err = reader.CommitMessages(ctx, km)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	log.Printf("kafka consumer: commit failed after %d attempts: %v", commitAttempts, err)
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts, ok := c.partLocks[topic]
	if !ok {
		parts = make(map[int]*sync.Mutex)
		c.partLocks[topic] = parts
	}
	lock, ok := parts[partition]
	if !ok {
		lock = &sync.Mutex{}
		parts[partition] = lock
	}
	return lock
}

// backoffWithJitter grows exponentially from min, caps at max, and strips up
// to half the delay so synchronized retries spread out.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	delay := min << uint(attempt-1)
	if delay > max || delay <= 0 {
		delay = max
	}
	if half := int64(delay) / 2; half > 0 {
		delay -= time.Duration(rand.Int63n(half))
	}
	return delay
}

var (
	consumerOnce       sync.Once
	consumerQueueDepth *prometheus.GaugeVec
	consumerQueueFill  *prometheus.GaugeVec
	consumerHandleTime *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "earnscan_kafka_consumer_queue_depth",
			Help: "Messages waiting in the worker queue",
		}, []string{"topic"})
		consumerQueueFill = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "earnscan_kafka_consumer_queue_fullness",
			Help: "Worker queue utilization (len/cap)",
		}, []string{"topic"})
		consumerHandleTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name: "earnscan_kafka_consumer_handle_seconds",
			Help: "Per message handling time including retries",
		}, []string{"topic"})
	})
}
