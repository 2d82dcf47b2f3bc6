package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"stdout text", Config{Level: "info", Format: "text", Output: "stdout"}},
		{"stderr json", Config{Level: "debug", Format: "json", Output: "stderr"}},
		{"default output", Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.NoError(t, closer.Close())
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	logger, closer, err := New(Config{Output: path})
	require.NoError(t, err)

	logger.Info("reader connected", "reader", "Reader A")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reader connected")
	assert.Error(t, closer.Close(), "file is already closed")
}

func TestNewUnwritableFile(t *testing.T) {
	_, _, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "bridge.log")})
	assert.Error(t, err)
}

func TestTextFormatLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "warn"})

	logger.Info("dropped")
	logger.Warn("kept", "subscribers", 2)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "subscribers=2")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: "debug", Format: "json"})

	logger.Debug("state changed", "state", "readerConnected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "state changed", entry["msg"])
	assert.Equal(t, "readerConnected", entry["state"])
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
}
