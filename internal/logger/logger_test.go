package logger

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

func withBuffer(t *testing.T, format string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	SetOutput(&buf, format)
	t.Cleanup(func() {
		_ = Close()
		currentLevel.Store(int32(prev))
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := withBuffer(t, FormatText)
	SetLevel("WARN")

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	_ = withBuffer(t, FormatText)
	SetLevel("ERROR")
	SetLevel("nonsense")
	assert.Equal(t, LevelError, GetLevel())
}

func TestJSONFormat(t *testing.T) {
	buf := withBuffer(t, FormatJSON)
	SetLevel("DEBUG")

	Info("served %s", "/index.html")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "served /index.html", entry["msg"])
}

func TestConfigureFileOutput(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() {
		_ = Close()
		currentLevel.Store(int32(prev))
	})

	path := filepath.Join(t.TempDir(), "logs", "server.log")
	require.NoError(t, Configure("info", FormatText, path))

	Info("hello %s", "file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] hello file")
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Configure("loud", FormatText, "stdout"))
}
