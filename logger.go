// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// logger.go — Logger interface used for audit and diagnostic logging, a
// noop default, and a zap-backed adapter for production deployments.

package embedcore

import "go.uber.org/zap"

// Logger is the logging interface used internally by EmbedCore.
// Implement this to route logs to zap, slog, logrus, etc.
// Key material is never passed through this interface.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(_ string, _ ...any)  {}
func (noopLogger) Warn(_ string, _ ...any)  {}
func (noopLogger) Error(_ string, _ ...any) {}
func (noopLogger) Debug(_ string, _ ...any) {}

// ZapLogger adapts a *zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger for use as Config.Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Info(msg string, keysAndValues ...any)  { z.s.Infow(msg, keysAndValues...) }
func (z *ZapLogger) Warn(msg string, keysAndValues ...any)  { z.s.Warnw(msg, keysAndValues...) }
func (z *ZapLogger) Error(msg string, keysAndValues ...any) { z.s.Errorw(msg, keysAndValues...) }
func (z *ZapLogger) Debug(msg string, keysAndValues ...any) { z.s.Debugw(msg, keysAndValues...) }
