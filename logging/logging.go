// Package logging builds the process logger from configuration and hands
// it to every package that logs.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/native-runtime/config"
	"github.com/wippyai/native-runtime/engine"
	"github.com/wippyai/native-runtime/errors"
	"github.com/wippyai/native-runtime/hook"
	"github.com/wippyai/native-runtime/host"
	"github.com/wippyai/native-runtime/jit"
	"github.com/wippyai/native-runtime/marshal"
)

// New returns a logger for cfg. Console output or development mode selects
// the human-readable encoder; DevMode forces debug level.
func New(cfg config.Log, dev config.Dev) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level "+cfg.Level)
		}
		level = l
	}
	if dev.DevMode {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development || dev.Console {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Development = cfg.Development
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotInitialized, err, "build logger")
	}
	return l, nil
}

// Install hands l to each subsystem under its own name.
func Install(l *zap.Logger) {
	jit.SetLogger(l.Named("jit"))
	marshal.SetLogger(l.Named("marshal"))
	hook.SetLogger(l.Named("hook"))
	engine.SetLogger(l.Named("engine"))
	host.SetLogger(l.Named("host"))
}
