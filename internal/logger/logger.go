// Package logger wraps zap behind a small global surface.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.SugaredLogger

// Init configures the global logger. Level is one of debug, info, warn,
// error; anything unparseable falls back to info.
func Init(level string) error {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.DisableStacktrace = true

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := config.Build()
	if err != nil {
		return err
	}
	globalLogger = l.Sugar()
	return nil
}

// Get returns the global logger, initializing a default one if Init was
// never called.
func Get() *zap.SugaredLogger {
	if globalLogger == nil {
		l, _ := zap.NewDevelopment()
		globalLogger = l.Sugar()
	}
	return globalLogger
}

// Convenience functions on the global logger.
func Debugw(msg string, kv ...interface{}) { Get().Debugw(msg, kv...) }
func Infow(msg string, kv ...interface{})  { Get().Infow(msg, kv...) }
func Warnw(msg string, kv ...interface{})  { Get().Warnw(msg, kv...) }
func Errorw(msg string, kv ...interface{}) { Get().Errorw(msg, kv...) }

// Sync flushes buffered entries.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}
