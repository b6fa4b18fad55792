package logger

import (
	stdLog "log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log struct {
	LogLevel zapcore.Level `yaml:"level" envconfig:"LOG_LEVEL"`
	Sink     string        `yaml:"sink" envconfig:"LOG_SINK"`
}

// NewLogger builds a json zap logger named after the component.
// An empty Sink writes to stderr.
func NewLogger(cfg Log, name string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.TimeKey = "ts"
	if cfg.Sink != "" {
		zcfg.OutputPaths = []string{cfg.Sink}
	}
	if cfg.LogLevel == zapcore.DebugLevel {
		zcfg.Sampling = nil
	}

	log, err := zcfg.Build()
	if err != nil {
		stdLog.Fatal("logger build ", err)
	}
	return log.Named(name)
}
