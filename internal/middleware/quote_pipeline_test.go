package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EarnScan/internal/domain/models"
	svccache "EarnScan/internal/service/cache"
	"EarnScan/internal/services/providers"
)

type recordingWriter struct {
	mu      sync.Mutex
	written []*models.Quote
	err     error
}

func (w *recordingWriter) Write(_ context.Context, q *models.Quote) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, q)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

type pipeMetrics struct {
	mu     sync.Mutex
	errors []string
	prices map[string]float64
}

func newPipeMetrics() *pipeMetrics { return &pipeMetrics{prices: map[string]float64{}} }

func (m *pipeMetrics) RecordMessageSent(string, string) {}
func (m *pipeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors = append(m.errors, kind)
	m.mu.Unlock()
}
func (m *pipeMetrics) RecordLastPrice(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}
func (m *pipeMetrics) RecordLatency(string, float64)    {}
func (m *pipeMetrics) RecordClassification(string, int) {}
func (m *pipeMetrics) RecordScan(string, float64)       {}

func (m *pipeMetrics) errorKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

func tick(symbol string, price float64) *models.Quote {
	return &models.Quote{Symbol: symbol, Price: price, AsOf: time.Now()}
}

func TestProcessForwardsValidQuotes(t *testing.T) {
	w := &recordingWriter{}
	metrics := newPipeMetrics()
	p := NewQuotePipeline(w, metrics)

	require.NoError(t, p.Process(context.Background(), tick("AAA", 25.5)))
	assert.Equal(t, 1, w.count())
	assert.Equal(t, 25.5, metrics.prices["AAA"])
}

func TestProcessRejectsMalformedQuotes(t *testing.T) {
	w := &recordingWriter{}
	metrics := newPipeMetrics()
	p := NewQuotePipeline(w, metrics)

	assert.Error(t, p.Process(context.Background(), nil))
	assert.Error(t, p.Process(context.Background(), tick("", 10)))
	assert.Error(t, p.Process(context.Background(), tick("AAA", 0)))
	assert.Error(t, p.Process(context.Background(), tick("AAA", -1)))

	assert.Zero(t, w.count(), "nothing malformed reaches the cache")
	assert.Equal(t, []string{"pipeline_validate", "pipeline_validate", "pipeline_validate", "pipeline_validate"},
		metrics.errorKinds())
}

func TestProcessThrottlesPerSymbol(t *testing.T) {
	w := &recordingWriter{}
	p := NewQuotePipeline(w, newPipeMetrics(), WithMaxRPS(1))

	require.NoError(t, p.Process(context.Background(), tick("AAA", 25.0)))
	require.NoError(t, p.Process(context.Background(), tick("AAA", 25.1)), "throttled ticks are dropped silently")
	require.NoError(t, p.Process(context.Background(), tick("BBB", 50.0)))

	assert.Equal(t, 2, w.count(), "one per symbol inside the window")
}

func TestProcessBuffersOnWriteFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("cache down")}
	metrics := newPipeMetrics()
	p := NewQuotePipeline(w, metrics, WithBufferSize(4))

	err := p.Process(context.Background(), tick("AAA", 25.0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline downstream")
	assert.Contains(t, metrics.errorKinds(), "pipeline_write")

	// the tick is parked in the buffer; once the downstream recovers the
	// background flusher drains it
	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return w.count() == 1 },
		2*time.Second, 10*time.Millisecond, "buffered tick was never flushed")
}

func TestProcessDropsWhenBufferFull(t *testing.T) {
	w := &recordingWriter{err: errors.New("cache down")}
	metrics := newPipeMetrics()
	p := NewQuotePipeline(w, metrics, WithBufferSize(1), WithMaxRPS(1000))

	_ = p.Process(context.Background(), tick("AAA", 25.0))
	_ = p.Process(context.Background(), tick("BBB", 30.0))

	assert.Contains(t, metrics.errorKinds(), "pipeline_buffer_full")
}

func TestCacheQuoteWriterMergesAvgVolume(t *testing.T) {
	cache := svccache.NewTTLCache()
	w := NewCacheQuoteWriter(cache, time.Minute)

	// the provider seeded the cache with a full quote including volume
	seeded, err := providers.EncodeQuote(models.Quote{
		Symbol: "AAA", Price: 25.0, AvgVolume: 2_000_000, AsOf: time.Unix(1742565600, 0).UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, cache.SetBytes(providers.QuoteCacheKey("AAA"), seeded, time.Minute))

	// stream ticks carry price only
	require.NoError(t, w.Write(context.Background(), &models.Quote{
		Symbol: "AAA", Price: 26.4, AsOf: time.Unix(1742565660, 0).UTC(),
	}))

	b, ok, err := cache.GetBytes(providers.QuoteCacheKey("AAA"))
	require.NoError(t, err)
	require.True(t, ok)
	got, err := providers.DecodeQuote(b)
	require.NoError(t, err)
	assert.Equal(t, 26.4, got.Price, "the tick price wins")
	assert.Equal(t, 2_000_000.0, got.AvgVolume, "the trailing volume survives the merge")
}

func TestCacheQuoteWriterFreshSymbol(t *testing.T) {
	cache := svccache.NewTTLCache()
	w := NewCacheQuoteWriter(cache, time.Minute)

	require.NoError(t, w.Write(context.Background(), &models.Quote{
		Symbol: "NEW", Price: 12.0, AsOf: time.Unix(1742565600, 0).UTC(),
	}))

	b, ok, err := cache.GetBytes(providers.QuoteCacheKey("NEW"))
	require.NoError(t, err)
	require.True(t, ok)
	got, err := providers.DecodeQuote(b)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Price)
	assert.Zero(t, got.AvgVolume, "nothing to merge for a symbol the provider has not quoted")
}
