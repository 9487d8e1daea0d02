package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanRequest struct {
	ScanID string  `json:"scan_id"`
	Date   string  `json:"date"`
	Pass   float64 `json:"pass"`
}

func TestParsePayloadPassesPointersThrough(t *testing.T) {
	in := &scanRequest{ScanID: "scan-1"}

	out, err := ParsePayload[scanRequest](in)

	require.NoError(t, err)
	assert.Same(t, in, out)
}

func TestParsePayloadCopiesValues(t *testing.T) {
	out, err := ParsePayload[scanRequest](scanRequest{ScanID: "scan-2"})

	require.NoError(t, err)
	assert.Equal(t, "scan-2", out.ScanID)
}

func TestParsePayloadDecodesRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"scan_id":"scan-3","date":"2025-03-21","pass":1.25}`)

	out, err := ParsePayload[scanRequest](raw)

	require.NoError(t, err)
	assert.Equal(t, "scan-3", out.ScanID)
	assert.Equal(t, "2025-03-21", out.Date)
	assert.Equal(t, 1.25, out.Pass)
}

func TestParsePayloadReencodesMaps(t *testing.T) {
	m := map[string]interface{}{"scan_id": "scan-4", "pass": 2.0}

	out, err := ParsePayload[scanRequest](m)

	require.NoError(t, err)
	assert.Equal(t, "scan-4", out.ScanID)
	assert.Equal(t, 2.0, out.Pass)
}

func TestParsePayloadReencodesSlices(t *testing.T) {
	s := []interface{}{"AAPL", "MSFT"}

	out, err := ParsePayload[[]string](s)

	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, *out)
}

func TestParsePayloadRejectsUnknownTypes(t *testing.T) {
	_, err := ParsePayload[scanRequest](42)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported payload type")
}
