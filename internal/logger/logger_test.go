package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, logger.ParseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, logger.ParseLevel("chatty"))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, level := logger.New(config.LogConfig{Level: "warn", File: path, MaxSizeMB: 1})

	log.Info("dropped")
	level.SetLevel(zapcore.InfoLevel)
	log.Info("kept", zap.String("exam", "e1"))
	_ = log.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), `"exam":"e1"`)
}
