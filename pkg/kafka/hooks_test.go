package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopHookPassesEverythingThrough(t *testing.T) {
	ctx := context.Background()
	km := kafka.Message{Partition: 3, Offset: 42}
	data := []byte("payload")

	outCtx, outMsg, outData, err := NoopHook{}.BeforeHandle(ctx, "results", km, data)

	require.NoError(t, err)
	assert.Equal(t, ctx, outCtx)
	assert.Equal(t, km, outMsg)
	assert.Equal(t, data, outData)
}

func TestHookFuncsTreatsNilMembersAsNoops(t *testing.T) {
	var h HookFuncs
	ctx := context.Background()
	km := kafka.Message{Offset: 7}

	outCtx, outMsg, outData, err := h.BeforeHandle(ctx, "results", km, []byte("x"))

	require.NoError(t, err)
	assert.Equal(t, ctx, outCtx)
	assert.Equal(t, km, outMsg)
	assert.Equal(t, []byte("x"), outData)
	assert.NotPanics(t, func() {
		h.AfterHandle(ctx, "results", km, nil, errors.New("boom"))
		h.OnError(ctx, "results", km, nil, errors.New("boom"))
	})
}

func TestTracingHookStampsTraceIDIntoContext(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("scan-7f3a")}}}

	ctx, _, _, err := TracingHook().BeforeHandle(context.Background(), "results", km, nil)

	require.NoError(t, err)
	assert.Equal(t, "scan-7f3a", TraceIDFromContext(ctx))
}

func TestTracingHookLeavesContextWithoutHeader(t *testing.T) {
	ctx, _, _, err := TracingHook().BeforeHandle(context.Background(), "results", kafka.Message{}, nil)

	require.NoError(t, err)
	assert.Empty(t, TraceIDFromContext(ctx))
}

func TestExtractTraceID(t *testing.T) {
	withHeader := kafka.Message{Headers: []kafka.Header{
		{Key: "content-type", Value: []byte("application/json")},
		{Key: "trace_id", Value: []byte("abc123")},
	}}

	assert.Equal(t, "abc123", ExtractTraceID(withHeader))
	assert.Empty(t, ExtractTraceID(kafka.Message{}))
	assert.Empty(t, ExtractTraceID(kafka.Message{Headers: []kafka.Header{{Key: "trace_id"}}}))
}
