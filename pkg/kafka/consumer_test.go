package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	topic    string
	failures int32
	calls    int32
	started  chan struct{}
}

func (h *stubHandler) Topic() string { return h.topic }

func (h *stubHandler) Handle(context.Context, []byte) error {
	n := atomic.AddInt32(&h.calls, 1)
	if h.started != nil && n == 1 {
		close(h.started)
	}
	if n <= atomic.LoadInt32(&h.failures) {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	base := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
		WithConsumerWorkers(1),
	}
	c, err := NewConsumer(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	c, err := NewConsumer(WithConsumerGroupID("g"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers are required")
	assert.Nil(t, c)
}

func TestRegisterHandlerFirstWins(t *testing.T) {
	c := newTestConsumer(t)
	first := &stubHandler{topic: "results"}
	second := &stubHandler{topic: "results"}

	c.RegisterHandler(first)
	c.RegisterHandler(second)

	require.Len(t, c.handlers, 1)
	assert.Same(t, first, c.handlers["results"].(*stubHandler))
}

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t)
	h := &stubHandler{topic: "results", failures: 2}
	c.RegisterHandler(h)

	c.workerWg.Add(1)
	go c.worker()
	c.queue <- &inflight{topic: "results", payload: []byte(`{}`), raw: kafka.Message{Partition: 0}}
	close(c.queue)
	c.workerWg.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&h.calls))
}

func TestWorkerExhaustsRetriesAndCallsErrorHook(t *testing.T) {
	c := newTestConsumer(t)
	h := &stubHandler{topic: "results", failures: 100}
	c.RegisterHandler(h)

	var errHookCalls int32
	c.WithConsumerHook(HookFuncs{
		Err: func(context.Context, string, kafka.Message, []byte, error) {
			atomic.AddInt32(&errHookCalls, 1)
		},
	})

	c.workerWg.Add(1)
	go c.worker()
	c.queue <- &inflight{topic: "results", payload: []byte(`{}`), raw: kafka.Message{Partition: 1}}
	close(c.queue)
	c.workerWg.Wait()

	// RetryMax 2 means three attempts. OnError fires before each backoff
	// and once more when the worker gives up.
	assert.Equal(t, int32(3), atomic.LoadInt32(&h.calls))
	assert.Equal(t, int32(3), atomic.LoadInt32(&errHookCalls))
}

func TestWorkerSkipsUnknownTopics(t *testing.T) {
	c := newTestConsumer(t)
	h := &stubHandler{topic: "results"}
	c.RegisterHandler(h)

	c.workerWg.Add(1)
	go c.worker()
	c.queue <- &inflight{topic: "other", payload: []byte(`{}`)}
	close(c.queue)
	c.workerWg.Wait()

	assert.Zero(t, atomic.LoadInt32(&h.calls))
}

func TestStopAbortsRetryBackoff(t *testing.T) {
	c := newTestConsumer(t, WithConsumerRetry(5, time.Minute, time.Minute))
	h := &stubHandler{topic: "results", failures: 100, started: make(chan struct{})}
	c.RegisterHandler(h)

	c.workerWg.Add(1)
	go c.worker()
	c.queue <- &inflight{topic: "results", payload: []byte(`{}`), raw: kafka.Message{Partition: 0}}

	select {
	case <-h.started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
	close(c.stop)
	close(c.queue)

	done := make(chan struct{})
	go func() {
		c.workerWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.calls))
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	c := newTestConsumer(t)

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestPartitionLockIsSharedPerPartition(t *testing.T) {
	c := newTestConsumer(t)

	a := c.partitionLock("results", 0)
	b := c.partitionLock("results", 0)
	other := c.partitionLock("results", 1)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}

func TestBackoffWithJitterStaysInBounds(t *testing.T) {
	min, max := 50*time.Millisecond, 2*time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, d, max, "attempt %d", attempt)
	}
}

func TestBackoffWithJitterNormalizesBadRange(t *testing.T) {
	d := backoffWithJitter(0, -time.Second, 1)

	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 50*time.Millisecond)
}
