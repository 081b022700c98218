package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("loud"))
}

func TestNewLoggerWithServiceStampsEntries(t *testing.T) {
	logger := NewLoggerWithService("brandpulse-api")
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLevel(InfoLevel)

	logger.WithField("batch", "b1").Info("batch committed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "brandpulse-api", entry["service"])
	assert.Equal(t, "b1", entry["batch"])
	assert.Equal(t, "batch committed", entry["msg"])
}
