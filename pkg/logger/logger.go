// SPDX-FileCopyrightText: Copyright 2026 StackMesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides the logging capability for authgate.
//
// It exposes a package-level sugared logger so call sites can log structured
// key/value pairs without threading a logger through every constructor:
//
//	logger.Infow("issued tokens", "client_id", clientID)
package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton is the package-level logger created by Initialize.
// Accessed atomically to be safe for concurrent use across goroutines.
var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	// Set a default logger so callers that skip Initialize() don't panic.
	l, _ := zap.NewProduction()
	singleton.Store(l.Sugar())
}

// Initialize configures the singleton logger. When debug is true, a
// development config with human-readable output and debug level is used;
// otherwise JSON output at info level.
func Initialize(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	singleton.Store(l.Sugar())
	return nil
}

// Get returns the underlying *zap.SugaredLogger for injection into structs.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// Set replaces the singleton logger. This is intended for tests that need to
// capture log output; production code should use Initialize instead.
func Set(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = singleton.Load().Sync()
}

// Debug logs a message at debug level.
func Debug(msg string) { singleton.Load().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(msg string, args ...any) { singleton.Load().Debugf(msg, args...) }

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) { singleton.Load().Debugw(msg, keysAndValues...) }

// Info logs a message at info level.
func Info(msg string) { singleton.Load().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) { singleton.Load().Infof(msg, args...) }

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) { singleton.Load().Infow(msg, keysAndValues...) }

// Warn logs a message at warning level.
func Warn(msg string) { singleton.Load().Warn(msg) }

// Warnf logs a formatted message at warning level.
func Warnf(msg string, args ...any) { singleton.Load().Warnf(msg, args...) }

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) { singleton.Load().Warnw(msg, keysAndValues...) }

// Error logs a message at error level.
func Error(msg string) { singleton.Load().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) { singleton.Load().Errorf(msg, args...) }

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) { singleton.Load().Errorw(msg, keysAndValues...) }
