package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefaultLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestConfigureDefaultLoggerLevels(t *testing.T) {
	restoreDefaultLogger(t)

	var stderr bytes.Buffer
	f, err := configureDefaultLogger(&stderr, "warn", "", slog.HandlerOptions{})
	require.NoError(t, err)
	assert.Nil(t, f)

	slog.Info("hidden")
	slog.Warn("shown", "chunk", 3)
	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "msg=shown chunk=3")
}

func TestConfigureDefaultLoggerNone(t *testing.T) {
	restoreDefaultLogger(t)

	var stderr bytes.Buffer
	f, err := configureDefaultLogger(&stderr, "none", "", slog.HandlerOptions{})
	require.NoError(t, err)
	assert.Nil(t, f)

	slog.Error("nobody hears this")
	assert.Empty(t, stderr.String())
}

func TestConfigureDefaultLoggerFile(t *testing.T) {
	restoreDefaultLogger(t)

	path := filepath.Join(t.TempDir(), "mictest.log")
	f, err := ConfigureDefaultLogger("debug", path, slog.HandlerOptions{})
	require.NoError(t, err)
	require.NotNil(t, f)

	slog.Debug("to file", "backend", "dummy")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "to file", record["msg"])
	assert.Equal(t, "dummy", record["backend"])
}

func TestConfigureDefaultLoggerErrors(t *testing.T) {
	restoreDefaultLogger(t)

	_, err := ConfigureDefaultLogger("verbose", "", slog.HandlerOptions{})
	assert.Error(t, err)

	_, err = ConfigureDefaultLogger("info", filepath.Join(t.TempDir(), "missing", "x.log"), slog.HandlerOptions{})
	assert.Error(t, err)
}
