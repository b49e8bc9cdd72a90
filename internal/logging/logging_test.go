package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuild_WritesJSONToStdoutAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "api.log")

	logger, closeFn, err := build(zapcore.AddSync(&buf), zapcore.InfoLevel, Options{
		ServiceName: "onramp",
		File:        path,
		MaxSizeMB:   1,
	})
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("hold reserved", zap.String("hold_id", "h1"))
	require.NoError(t, closeFn())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "hold reserved", line["msg"])
	assert.Equal(t, "h1", line["hold_id"])
	assert.Equal(t, "onramp", line["service.name"])
	assert.Contains(t, line, "ts")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hold_id":"h1"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger, closeFn, err := New(Options{Level: "loud"})
	require.NoError(t, err)
	defer closeFn()
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
