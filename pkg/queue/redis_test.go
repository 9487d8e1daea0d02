package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"EarnScan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return l
}

type noopJob struct {
	name string
	typ  string
}

func (j noopJob) Name() string { return j.name }
func (j noopJob) Type() string { return j.typ }
func (j noopJob) Handle(context.Context, interface{}) error {
	return nil
}

func TestNewConsumerNormalizesConfig(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), &QueueConfig{}, nil, nil)

	assert.Equal(t, 1, q.cfg.Workers)
	assert.Equal(t, 10*time.Second, q.cfg.RetryDelay)
	assert.Equal(t, "earnscan:queue:messages", q.queueKey)
	assert.Equal(t, "earnscan:queue:retry", q.retryKey)
	assert.Equal(t, "earnscan:queue:dlq", q.dlqKey)
}

func TestWithKeyPrefixRewritesKeys(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), nil, nil, nil, WithKeyPrefix("custom"))

	assert.Equal(t, "custom:messages", q.queueKey)
	assert.Equal(t, "custom:retry", q.retryKey)
	assert.Equal(t, "custom:dlq", q.dlqKey)
}

func TestRegisterJobKeepsFirstBinding(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), nil, nil, nil)
	first := noopJob{name: "scan-runner", typ: "scan.requested"}
	second := noopJob{name: "other-runner", typ: "scan.requested"}

	q.RegisterJob(first)
	q.RegisterJob(second)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "scan-runner", q.jobs["scan.requested"].Name())
}

func TestPublisherQueueIgnoresJobRegistration(t *testing.T) {
	q := newRedisQueue(testLogger(t), nil, nil, false)

	q.RegisterJob(noopJob{name: "scan-runner", typ: "scan.requested"})

	assert.Empty(t, q.jobs)
}

func TestPublishMessageRequiresRunningQueue(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), nil, nil, []Job{noopJob{name: "j", typ: "scan.requested"}})

	err := q.PublishMessage(context.Background(), "scan.requested", map[string]string{"scan_id": "s-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue not running")
}

func TestPublishMessageRejectsUnknownTypesOnConsumers(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), nil, nil, []Job{noopJob{name: "j", typ: "scan.requested"}})
	q.mu.Lock()
	q.running = true
	q.mu.Unlock()

	err := q.PublishMessage(context.Background(), "unknown.type", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job registered")
}

func TestNormalizePayloadWrapsDecodedMaps(t *testing.T) {
	out := normalizePayload(map[string]interface{}{"scan_id": "s-9"})

	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"scan_id":"s-9"}`, string(raw))
}

func TestNormalizePayloadLeavesOtherValues(t *testing.T) {
	in := &scanRequest{ScanID: "s-10"}

	assert.Same(t, in, normalizePayload(in).(*scanRequest))
	assert.Equal(t, "plain", normalizePayload("plain"))
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	q := NewRedisConsumer(testLogger(t), nil, nil, nil)

	require.NoError(t, q.Stop(context.Background()))
}
