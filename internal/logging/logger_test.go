package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "debug", "json"), "balance")

	logger.Debug("cache miss", "address", "0xabc")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "cache miss", record["msg"])
	assert.Equal(t, "balance", record["component"])
	assert.Equal(t, "0xabc", record["address"])
}

func TestNewLoggerInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "verbose", "text")

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Info("shown")
	assert.Contains(t, buf.String(), "shown")
}
