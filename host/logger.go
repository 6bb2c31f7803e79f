package host

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the host module logger. Guest log calls go to its
// "guest" child.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the host module logger.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
