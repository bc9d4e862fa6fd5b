package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLogger_KeysAndValues(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.DebugLevel)

	logger.Info("request sent", "path", "/users/me", "status", 200)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request sent", entry["message"])
	assert.Equal(t, "/users/me", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel)

	logger.Debug("hidden")
	assert.Empty(t, buf.Bytes())

	logger.Error("visible", "error", "boom")
	assert.Contains(t, buf.String(), "visible")
}

func TestZerologLogger_SkipsNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.DebugLevel)

	logger.Warn("odd pairs", 42, "value", "key", "kept")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["key"])
}
