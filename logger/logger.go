// Package logger is the engine-wide logging facade: human-readable
// console output for interactive runs plus an optional rotated JSON
// file for long rehearsal sessions. The audio callback never logs;
// everything else funnels through here.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	Level      string // zap level name (debug, info, warn, error, ...); unparsable values mean info
	FilePath   string // empty disables the rotated file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	global = zap.NewNop()
	once   sync.Once
)

// Init builds the global logger. Safe to call more than once; only
// the first call takes effect. Before Init, logging is a no-op.
func Init(cfg Config) {
	once.Do(func() {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeDuration = zapcore.StringDurationEncoder

		cores := []zapcore.Core{
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
		}

		if cfg.FilePath != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
				rotated := &lumberjack.Logger{
					Filename:   cfg.FilePath,
					MaxSize:    cfg.MaxSizeMB,
					MaxBackups: cfg.MaxBackups,
					MaxAge:     cfg.MaxAgeDays,
					Compress:   cfg.Compress,
				}
				cores = append(cores,
					zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotated), level))
			}
		}

		global = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	})
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	_ = global.Sync()
}

// Debug logs a debug-level message.
func Debug(msg string, fields ...zap.Field) {
	global.Debug(msg, fields...)
}

// Info logs an info-level message.
func Info(msg string, fields ...zap.Field) {
	global.Info(msg, fields...)
}

// Warn logs a warn-level message.
func Warn(msg string, fields ...zap.Field) {
	global.Warn(msg, fields...)
}

// Error logs an error-level message.
func Error(msg string, fields ...zap.Field) {
	global.Error(msg, fields...)
}

// Fatal logs a fatal-level message and exits.
func Fatal(msg string, fields ...zap.Field) {
	global.Fatal(msg, fields...)
}

// F builds a structured field from any value. The single constructor
// keeps call sites uniform; zap picks the concrete encoding.
func F(key string, value any) zap.Field {
	return zap.Any(key, value)
}

// Err wraps an error as a structured field.
func Err(err error) zap.Field {
	return zap.Error(err)
}
