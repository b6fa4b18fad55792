package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Astemirdum/bookhub/pkg/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "bookhub.log")
	log := logger.NewLogger(logger.Log{LogLevel: zapcore.InfoLevel, Sink: sink}, "test")

	log.Debug("hidden")
	log.Info("visible")
	_ = log.Sync()

	data, err := os.ReadFile(sink)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"visible"`)
	require.Contains(t, string(data), `"logger":"test"`)
	require.NotContains(t, string(data), "hidden")
}
