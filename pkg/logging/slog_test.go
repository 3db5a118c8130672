package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWithServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "payment-service", "warn")

	log.Info("dropped")
	log.Warn("kept", "order_id", "o-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "payment-service", line["service"])
	assert.Equal(t, "o-1", line["order_id"])
}
