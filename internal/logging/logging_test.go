package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestJSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Options{JSON: true, Level: "warn"})

	log.Info("dropped")
	log.Warn("kept", "transfer_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "kept", entry["msg"])
	require.Equal(t, "WARN", entry["level"])
	require.Equal(t, "abc", entry["transfer_id"])
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, Options{Level: "debug"}).Debug("hello", "k", "v")
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=v")
}

func TestFileRotationTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frachter.log")
	log, closer := New(Options{JSON: true, File: path})
	log.Info("to_file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"to_file"`)
}
