package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "cdpd", Env: "test", Level: "debug"}, &buf)
	logger.Debug("block committed", slog.Uint64("height", 7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "block committed", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "cdpd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithOptionsFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "cdpd", Level: "warn"}, &buf)
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
}

func TestSetupWithOptionsWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	var buf bytes.Buffer
	logger := SetupWithOptions(Options{Service: "cdpd", File: path, MaxSizeMB: 1}, &buf)
	logger.Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "to file")
	require.Contains(t, buf.String(), "to file")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
