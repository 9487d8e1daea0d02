package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"EarnScan/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is the wire envelope stored in the Redis list.
type Message struct {
	ID        string
	Type      string
	Payload   interface{}
	Attempts  int
	Timestamp time.Time
}

// RedisQueue is a list-backed job queue with delayed retries in a sorted
// set and a dead letter list after the retry budget is spent.
type RedisQueue struct {
	logger *logger.Logger
	cfg    *QueueConfig
	client *redis.Client

	// consume enables workers and job registration. A publisher-only
	// queue just pushes.
	consume bool
	jobs    map[string]Job

	queueKey string
	retryKey string
	dlqKey   string

	mu      sync.RWMutex
	running bool
	stop    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption adjusts queue construction.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyedOn(prefix)
	}
}

const (
	defaultKeyPrefix = "earnscan:queue"
	popTimeout       = time.Second
	retrySweepEvery  = 5 * time.Second
)

func newRedisQueue(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, consume bool, opts ...RedisQueueOption) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		logger:  lgr,
		cfg:     cfg,
		client:  client,
		consume: consume,
		jobs:    make(map[string]Job),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.keyedOn(defaultKeyPrefix)

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) keyedOn(prefix string) {
	r.queueKey = prefix + ":messages"
	r.retryKey = prefix + ":retry"
	r.dlqKey = prefix + ":dlq"
}

// NewRedisPublisher creates a push-only queue and starts it immediately.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, nil, client, false, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// NewRedisConsumer creates a consuming queue with the given jobs. Start is
// left to the caller.
func NewRedisConsumer(lgr *logger.Logger, cfg *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := newRedisQueue(lgr, cfg, client, true, opts...)
	for _, job := range jobs {
		q.RegisterJob(job)
	}
	return q
}

// RegisterJob binds a job to its message type. The first binding wins.
func (r *RedisQueue) RegisterJob(job Job) {
	if !r.consume {
		r.logger.Warn("job registration ignored on publisher queue",
			logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.jobs[job.Type()]; dup {
		r.logger.Warn("job type already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and, on consuming queues, spawns the
// worker pool and the retry sweeper.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if !r.consume {
		r.logger.Info("redis publisher started",
			logger.String("addr", r.client.Options().Addr))
		return nil
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retrySweeper()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop halts workers and waits for them up to the context deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	close(r.stop)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("queue workers still busy at deadline", logger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// PublishMessage wraps the payload in an envelope and pushes it. Consuming
// queues refuse types without a registered job so typos surface early.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return fmt.Errorf("queue not running")
	}
	if r.consume {
		if _, ok := r.jobs[msgType]; !ok {
			return fmt.Errorf("no job registered for type: %s", msgType)
		}
	}

	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.queueKey, data).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Info("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		default:
			r.popNext()
		}
	}
}

func (r *RedisQueue) popNext() {
	result, err := r.client.BRPop(r.ctx, popTimeout, r.queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Error("queue pop failed", logger.Error(err))
		time.Sleep(time.Second)
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("queue message malformed", logger.Error(err))
		return
	}
	r.dispatch(msg)
}

func (r *RedisQueue) dispatch(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, normalizePayload(msg.Payload))
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("job interrupted by shutdown",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)))
		return
	}
	r.retryOrBury(msg, job, err)
}

// normalizePayload turns decoded-JSON maps back into raw JSON so jobs can
// unmarshal into their own types via ParsePayload.
func normalizePayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	data, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(data)
}

func (r *RedisQueue) retryOrBury(msg Message, job Job, cause error) {
	r.logger.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(cause))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.logger.Error("retry budget spent, dead lettering",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.pushEncoded(r.dlqKey, msg)
		return
	}

	msg.Attempts++
	retryAt := time.Now().Add(r.cfg.RetryDelay)
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry message", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey, redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.logger.Error("schedule retry", logger.Error(err))
		return
	}
	r.logger.Info("retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", retryAt.Format(time.RFC3339)))
}

func (r *RedisQueue) pushEncoded(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal message", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.logger.Error("push message", logger.String("key", key), logger.Error(err))
	}
}

// retrySweeper periodically moves due retries back onto the main list.
func (r *RedisQueue) retrySweeper() {
	defer r.wg.Done()

	ticker := time.NewTicker(retrySweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.requeueDue()
		}
	}
}

func (r *RedisQueue) requeueDue() {
	due, err := r.client.ZRangeByScoreWithScores(r.ctx, r.retryKey, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch due retries", logger.Error(err))
		}
		return
	}

	for _, z := range due {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey, member)
		pipe.LPush(r.ctx, r.queueKey, member)
		if _, err := pipe.Exec(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("requeue retry", logger.Error(err))
		}
	}
}
