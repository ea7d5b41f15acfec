package repository

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEventProperties_NilBecomesEmptyObject(t *testing.T) {
	props, err := encodeEventProperties(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), props, "nil must not reach the driver as SQL NULL")
}

func TestEncodeEventProperties_MarshalsValues(t *testing.T) {
	props, err := encodeEventProperties(map[string]any{"thought_id": "t1", "latency_ms": 120})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(props, &decoded))
	assert.Equal(t, "t1", decoded["thought_id"])
	assert.Equal(t, float64(120), decoded["latency_ms"])
}
