// Package logger provides the package-level structured logging surface
// used throughout authguard. It wraps a zap.SugaredLogger behind a
// singleton, matching the call-site shape (Debugf/Infof/Warnf/Errorf, plus
// the "w" keyword-argument variants) used across the teacher codebase.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	singleton.Store(l.Sugar())
}

// Get returns the current singleton logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// SetLogger replaces the singleton logger. Intended for process startup
// and tests.
func SetLogger(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// Debugf logs at debug level with printf-style formatting.
func Debugf(format string, args ...any) { Get().Debugf(format, args...) }

// Infof logs at info level with printf-style formatting.
func Infof(format string, args ...any) { Get().Infof(format, args...) }

// Warnf logs at warn level with printf-style formatting.
func Warnf(format string, args ...any) { Get().Warnf(format, args...) }

// Errorf logs at error level with printf-style formatting.
func Errorf(format string, args ...any) { Get().Errorf(format, args...) }

// Info logs a message at info level.
func Info(args ...any) { Get().Info(args...) }

// Warn logs a message at warn level.
func Warn(args ...any) { Get().Warn(args...) }

// Error logs a message at error level.
func Error(args ...any) { Get().Error(args...) }

// Debugw logs a message at debug level with structured key/value pairs.
func Debugw(msg string, kv ...any) { Get().Debugw(msg, kv...) }

// Warnw logs a message at warn level with structured key/value pairs.
func Warnw(msg string, kv ...any) { Get().Warnw(msg, kv...) }
