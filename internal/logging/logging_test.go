package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlogLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewSlog(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "worker_id", "w-1")
	logger.Warn("warn message")
	logger.Error("error message", "err", "boom")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "worker_id=w-1")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "err=boom")
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZap(zap.New(core))

	logger.Debug("debug message", "job_id", "j-1")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	require.Equal(t, 4, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "debug message", entry.Message)
	require.Equal(t, "j-1", entry.ContextMap()["job_id"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	require.NotPanics(t, func() {
		logger.Debug("m", "k", "v")
		logger.Info("m")
		logger.Warn("m")
		logger.Error("m")
		logger.Fatal("m")
	})
}

func TestNew(t *testing.T) {
	t.Run("slog json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, closeFn, err := New(Config{Format: "json", Level: "debug"}, buf)
		require.NoError(t, err)
		logger.Debug("hello", "k", 1)
		require.NoError(t, closeFn())
		require.Contains(t, buf.String(), `"msg":"hello"`)
	})

	t.Run("zap with rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "worker.log")
		buf := &bytes.Buffer{}
		logger, closeFn, err := New(Config{Driver: DriverZap, Format: "json", File: path}, buf)
		require.NoError(t, err)
		logger.Info("to file", "worker_id", "w-9")
		require.NoError(t, closeFn())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "w-9")
		require.Contains(t, buf.String(), "to file")
	})

	t.Run("level filters", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger, _, err := New(Config{Level: "warn"}, buf)
		require.NoError(t, err)
		logger.Info("hidden")
		require.Empty(t, buf.String())
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, _, err := New(Config{Driver: "log4j"}, &bytes.Buffer{})
		require.ErrorIs(t, err, ErrUnknownDriver)

		_, _, err = New(Config{Level: "loud"}, &bytes.Buffer{})
		require.Error(t, err)

		_, _, err = New(Config{Driver: DriverZap, Format: "xml"}, &bytes.Buffer{})
		require.Error(t, err)
	})
}
