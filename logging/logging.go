// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps zap the way the node wants it used: one
// structured (non-sugared) logger per component, a no-op variant for tests,
// and a single place that decides the encoder/level from config.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface every package in this module depends on,
// never *zap.Logger directly, so tests can swap in NewNoOp.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

func (z *zapLogger) Debug(msg string, fields ...zap.Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...zap.Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...zap.Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...zap.Field) { z.l.Error(msg, fields...) }
func (z *zapLogger) With(fields ...zap.Field) Logger       { return &zapLogger{l: z.l.With(fields...)} }

// New builds a production JSON logger at the given level ("debug",
// "info", "warn", "error"). An unrecognized level falls back to info.
func New(component string, level string) (Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l.With(zap.String("component", component))}, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...zap.Field)  {}
func (noopLogger) Info(string, ...zap.Field)   {}
func (noopLogger) Warn(string, ...zap.Field)   {}
func (noopLogger) Error(string, ...zap.Field)  {}
func (n noopLogger) With(...zap.Field) Logger  { return n }

// NewNoOp returns a Logger that discards everything, for tests.
func NewNoOp() Logger { return noopLogger{} }
