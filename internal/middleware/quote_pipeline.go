package middleware

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"EarnScan/internal/domain/models"
	domrepo "EarnScan/internal/domain/repository"
	svccache "EarnScan/internal/service/cache"
	"EarnScan/internal/service/ratelimit"
	"EarnScan/internal/services/providers"
)

const (
	defaultMaxRPS  = 10
	defaultBufSize = 1000

	flushBackoffMin = 50 * time.Millisecond
	flushBackoffMax = 2 * time.Second
)

// QuoteWriter is the downstream the pipeline flushes into.
type QuoteWriter interface {
	Write(ctx context.Context, q *models.Quote) error
}

// QuotePipeline sits between the quote stream and the market data cache.
// It validates, throttles per symbol, and buffers when the downstream write
// fails, so a cache hiccup never stalls the stream reader.
type QuotePipeline struct {
	writer   QuoteWriter
	metrics  domrepo.Metrics
	throttle *ratelimit.Limiter
	maxRPS   int
	bufSize  int
	buf      chan *models.Quote
	stop     chan struct{}
	started  atomic.Bool
}

type PipelineOption func(*QuotePipeline)

// WithMaxRPS sets the max accepted quotes per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used when the downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewQuotePipeline creates a new pipeline.
func NewQuotePipeline(writer QuoteWriter, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		writer:   writer,
		metrics:  metrics,
		throttle: ratelimit.New(),
		maxRPS:   defaultMaxRPS,
		bufSize:  defaultBufSize,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.buf = make(chan *models.Quote, p.bufSize)
	return p
}

// Start launches background flushing of buffered quotes. The pipeline is
// single-shot: once stopped it cannot be started again.
func (p *QuotePipeline) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.flush(ctx)
}

// Stop halts the background flusher. Parked quotes stay in the buffer.
func (p *QuotePipeline) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
}

// flush retries parked quotes against the downstream, backing off while it
// keeps failing and resetting once a write goes through.
func (p *QuotePipeline) flush(ctx context.Context) {
	backoff := flushBackoffMin
	for {
		select {
		case <-p.stop:
			return
		case q := <-p.buf:
			if q == nil {
				continue
			}
			if err := p.writer.Write(ctx, q); err == nil {
				backoff = flushBackoffMin
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			p.park(q, "pipeline_buffer_drop")
			select {
			case <-p.stop:
				return
			case <-time.After(backoff):
			}
			if backoff < flushBackoffMax {
				backoff *= 2
			}
		}
	}
}

// Process validates, throttles, and forwards a quote downstream, buffering it
// on write errors.
func (p *QuotePipeline) Process(ctx context.Context, q *models.Quote) error {
	start := time.Now()
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	// Throttled ticks are dropped silently: the cache already holds a
	// price this fresh.
	if !p.throttle.Allow(q.Symbol, float64(p.maxRPS), 1) {
		return nil
	}

	p.metrics.RecordLastPrice(q.Symbol, q.Price)
	if err := p.writer.Write(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_write")
		p.park(q, "pipeline_buffer_full")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_write", time.Since(start).Seconds())
	return nil
}

// park shelves a quote for the flusher, counting it under dropKind when the
// buffer has no room left.
func (p *QuotePipeline) park(q *models.Quote, dropKind string) {
	select {
	case p.buf <- q:
	default:
		p.metrics.RecordError(dropKind)
	}
}

func validateQuote(q *models.Quote) error {
	switch {
	case q == nil:
		return fmt.Errorf("quote is nil")
	case q.Symbol == "":
		return fmt.Errorf("quote has no symbol")
	case q.Price <= 0:
		return fmt.Errorf("quote price %.4f out of range", q.Price)
	}
	return nil
}

// CacheQuoteWriter writes stream quotes through to the market data cache under
// the provider's quote keys. Ticks carry price only, so the trailing average
// volume from the previous cached entry is preserved on merge.
type CacheQuoteWriter struct {
	cache svccache.BytesCache
	ttl   time.Duration
}

func NewCacheQuoteWriter(cache svccache.BytesCache, ttl time.Duration) *CacheQuoteWriter {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CacheQuoteWriter{cache: cache, ttl: ttl}
}

func (w *CacheQuoteWriter) Write(ctx context.Context, q *models.Quote) error {
	merged := *q
	key := providers.QuoteCacheKey(q.Symbol)
	if b, ok, err := w.cache.GetBytes(key); err == nil && ok {
		if prev, err := providers.DecodeQuote(b); err == nil && prev.AvgVolume > 0 {
			merged.AvgVolume = prev.AvgVolume
		}
	}
	b, err := providers.EncodeQuote(merged)
	if err != nil {
		return fmt.Errorf("encode quote %s: %w", q.Symbol, err)
	}
	return w.cache.SetBytes(key, b, w.ttl)
}

var _ QuoteWriter = (*CacheQuoteWriter)(nil)
