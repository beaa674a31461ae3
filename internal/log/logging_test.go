package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace": LevelTrace,
		"debug": slog.LevelDebug,
		"":      slog.LevelInfo,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleSplitsErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(NewConsole(&stdout, &stderr, LevelTrace))

	logger.Log(t.Context(), LevelTrace, "Resolved reference", "name", "GObject.Object")
	logger.Info("Generated crate", "crate", "demo_1_0")
	logger.Error("Write failed", "path", "src/lib.rs")

	assert.Contains(t, stdout.String(), "Resolved reference")
	assert.Contains(t, stdout.String(), "Generated crate")
	assert.NotContains(t, stdout.String(), "Write failed")
	assert.Contains(t, stderr.String(), "Write failed")
	assert.NotContains(t, stderr.String(), "Generated crate")
}

func TestSetupLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "girgen.log")
	logger, closers, err := SetupLogger("debug", path)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Debug("Loaded GIR", "file", "Demo-1.0.gir")
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Loaded GIR")
}

func TestSetupLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := SetupLogger("chatty", "")
	assert.Error(t, err)
}
