package utils

import (
	"go.uber.org/zap"
)

// Logger is a small key/value facade over zap's sugared logger.
type Logger struct {
	l *zap.SugaredLogger
}

func NewLogger() *Logger {
	base, err := zap.NewProduction()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	return NewLoggerFrom(base)
}

func NewLoggerFrom(base *zap.Logger) *Logger {
	return &Logger{l: base.Sugar()}
}

// Nop discards everything; handy for tests.
func Nop() *Logger { return NewLoggerFrom(zap.NewNop()) }

func (lg *Logger) Info(msg string, kv ...any)  { lg.l.Infow(msg, kv...) }
func (lg *Logger) Warn(msg string, kv ...any)  { lg.l.Warnw(msg, kv...) }
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Errorw(msg, kv...) }

// With returns a child logger that always carries kv.
func (lg *Logger) With(kv ...any) *Logger { return &Logger{l: lg.l.With(kv...)} }

func (lg *Logger) Sync() error { return lg.l.Sync() }
