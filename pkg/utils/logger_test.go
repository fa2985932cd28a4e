package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"unknown", LevelInfo}, // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatText, ParseLogFormat(""))
}

func TestDefaultLogger_FilterByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelWarn, buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "[WARN] warn message")
	assert.Contains(t, output, "[ERROR] error message")
}

func TestDefaultLogger_WithFieldsSortedAndInherited(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewDefaultLogger(LevelInfo, buf)

	child := base.WithField("stage", "decode").WithFields(map[string]interface{}{"backend": "batch"})
	child.Info("resolved %d addresses", 12)
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[INFO] backend=batch stage=decode resolved 12 addresses")
	assert.Contains(t, lines[1], "[INFO] plain")
}

func TestDefaultLogger_PercentWithoutArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelInfo, buf)

	logger.Info("100% done")
	assert.Contains(t, buf.String(), "100% done")
}

func TestDefaultLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelInfo, buf)
	logger.SetFormat(FormatJSON)
	logger.SetClock(NewMockClock(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))

	logger.WithField("stacks", 3).Info("decoded")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "decoded", entry["msg"])
	assert.Equal(t, float64(3), entry["stacks"])
	assert.Equal(t, "2024-05-06 07:08:09.000", entry["ts"])
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelError, buf)

	logger.Info("hidden")
	logger.SetLevel(LevelDebug)
	logger.Debug("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNullLogger(t *testing.T) {
	var logger Logger = &NullLogger{}

	logger.Debug("x")
	logger.Info("x")
	logger.Warn("x")
	logger.Error("x")
	assert.Same(t, logger, logger.WithField("k", "v"))
}

func TestOrNull(t *testing.T) {
	_, isNull := OrNull(nil).(*NullLogger)
	assert.True(t, isNull)

	logger := NewDefaultLogger(LevelInfo, &bytes.Buffer{})
	assert.Same(t, logger, OrNull(logger))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "macprof.log")

	logger, err := NewFileLogger(LevelInfo, path)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("decoded %d stacks", 3)

	second, err := NewFileLogger(LevelInfo, path)
	require.NoError(t, err)
	second.Warn("appended")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "decoded 3 stacks")
	assert.Contains(t, out, "appended")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
