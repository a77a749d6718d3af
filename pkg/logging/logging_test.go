package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "json", slog.LevelInfo)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("graph loaded", "graph", "social", "nodes", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "graph loaded", entry["msg"])
	assert.Equal(t, "social", entry["graph"])
	assert.EqualValues(t, 3, entry["nodes"])
}

func TestNewWithWriter_UnknownFormat(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "xml", slog.LevelInfo)
	assert.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "matrixgraph.log")
	logger, closer, err := New(config.LoggingConfig{Level: "DEBUG", Format: "text", Output: path})
	require.NoError(t, err)

	logger.Debug("flush applied", "kind", "label")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=\"flush applied\"")
	assert.Contains(t, string(data), "kind=label")
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "LOUD"})
	assert.Error(t, err)
	_, _, err = New(config.LoggingConfig{Level: "INFO", Format: "xml"})
	assert.Error(t, err)
}
