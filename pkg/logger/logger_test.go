package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_StdoutOnly(t *testing.T) {
	err := Init(&LogConfig{Level: "debug"}, "test")
	require.NoError(t, err)
	assert.NotNil(t, Lg)
	Info("logger ready", zap.String("mode", "test"))
}

func TestInit_WithFile(t *testing.T) {
	dir := t.TempDir()
	err := Init(&LogConfig{
		Level:      "info",
		Filename:   filepath.Join(dir, "logs", "app.log"),
		MaxSize:    1,
		MaxAge:     1,
		MaxBackups: 1,
	}, "production")
	require.NoError(t, err)
	Warn("written to file")
	_ = Sync()
	assert.FileExists(t, filepath.Join(dir, "logs", "app.log"))
}

func TestInit_BadLevelFallsBack(t *testing.T) {
	err := Init(&LogConfig{Level: "loud"}, "test")
	require.NoError(t, err)
	assert.True(t, Lg.Core().Enabled(zap.InfoLevel))
	assert.False(t, Lg.Core().Enabled(zap.DebugLevel))
}

func TestInit_NilConfig(t *testing.T) {
	require.NoError(t, Init(nil, "test"))
}
