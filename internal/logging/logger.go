// Package logging holds the process-wide zap logger shared by every
// component. Callers use the package-level Info/Error helpers; main swaps in
// the configured logger via SetGlobal once config is loaded.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	mu     sync.RWMutex
)

func init() {
	// Logging must work before main wires the configured logger.
	global, _ = zap.NewProduction()
}

// New builds a production JSON logger at one of the configured levels:
// debug, info, warn or error. An empty level means info.
func New(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// The package-level helpers add a frame, so skip it in caller info.
	return cfg.Build(zap.AddCallerSkip(1))
}

// Global returns the shared logger.
func Global() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetGlobal replaces the shared logger.
func SetGlobal(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// Info logs at info level using the shared logger.
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Error logs at error level using the shared logger.
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}
