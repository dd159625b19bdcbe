package log

import (
	"sync/atomic"
)

// The process-wide logger. Commands install a configured logger once at
// startup; everything that runs before that gets the lazily-built
// default.
var global atomic.Pointer[Logger]

// SetDefaultLogger installs the process-wide default logger.
func SetDefaultLogger(logger *Logger) {
	global.Store(logger)
}

// DefaultLogger returns the process-wide default logger, building one
// with default configuration on first use.
func DefaultLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, Default())
	return global.Load()
}
