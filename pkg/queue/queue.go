package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job consumes one message type from the queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job handles.
	Type() string

	// Handle processes one payload. Returning an error schedules a retry.
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig sizes the consumer side.
type QueueConfig struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
}

// ParsePayload coerces a queue payload into *T. Payloads arrive either as
// the original value (in-process dispatch) or as decoded JSON after a trip
// through Redis.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", payload)
	}
}
