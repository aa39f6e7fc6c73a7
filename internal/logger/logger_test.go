package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("create logger with console output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		zl := logger.GetZerolog()
		zl.Info().Msg("hello")
		assert.Contains(t, buf.String(), `"message":"hello"`)
		assert.Contains(t, buf.String(), `"service":"ideascout"`)
	})

	t.Run("create logger with file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "test.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		zl := logger.GetZerolog()
		zl.Info().Msg("test message")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "test message")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "loud"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})

	t.Run("redaction masks keys", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf, Redaction: true})
		require.NoError(t, err)
		assert.NotNil(t, logger.redactor)

		zl := logger.GetZerolog()
		zl.Info().Str("key", "tvly-abcdefghijklmnop1234").Msg("search configured")
		assert.Contains(t, buf.String(), "[REDACTED]")
		assert.NotContains(t, buf.String(), "tvly-abcdefghijklmnop1234")
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	child := logger.Component("gateway")
	child.Info().Msg("started")
	assert.Contains(t, buf.String(), `"component":"gateway"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
}
