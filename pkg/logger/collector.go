package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Publisher ships aggregated log batches to a transport, usually Kafka.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force a flush
	Topic          string        // destination topic for batches
	Publisher      Publisher
}

// Entry is one deduplicated log line with its occurrence window.
type Entry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector buffers repeated log lines and publishes them in batches,
// keyed by (level, message, fields, caller). A line logged in a tight loop
// becomes one entry with a count instead of a flood.
type LogCollector struct {
	cfg     *CollectionConfig
	mu      sync.Mutex
	entries map[string]*Entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

const publishTimeout = 30 * time.Second

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[string]*Entry),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.run()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := aggregationKey(level, message, caller, fields)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &Entry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Close flushes what is buffered and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *LogCollector) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.ctx.Done():
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked swaps the buffer out and publishes it in the background. The
// caller must hold mu. Publishes are wg-tracked so Close does not drop them.
func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}

	batch := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		batch = append(batch, *entry)
	}
	c.entries = make(map[string]*Entry)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			log.Printf("log collector: publish batch of %d: %v", len(batch), err)
		}
	}()
}

// aggregationKey hashes the identity of a log line. Map keys marshal in
// sorted order, so equal field sets hash equally.
func aggregationKey(level, message, caller string, fields map[string]interface{}) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(map[string]interface{}{
		"level":   level,
		"message": message,
		"caller":  caller,
		"fields":  fields,
	})
	return hex.EncodeToString(h.Sum(nil))
}
