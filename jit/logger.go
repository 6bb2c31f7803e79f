package jit

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the jit package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the jit package's logger.
// This must be called before any stubs are compiled.
func SetLogger(l *zap.Logger) {
	logger = l
}

func toString(v any) string {
	return fmt.Sprint(v)
}
