package snd

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex

	// stderr receives failures reported while no logger is configured.
	stderr zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
)

// Logger returns the package logger. It is a no-op logger unless SetLogger was called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()

	if l == nil {
		return zap.NewNop()
	}

	return l
}

// SetLogger replaces the package logger. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// errorLogger returns the package logger, or an error-level JSON logger on
// stderr while none is set, so failures are never discarded.
func errorLogger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()

	if l != nil {
		return l
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), stderr, zapcore.ErrorLevel)

	return zap.New(core)
}
