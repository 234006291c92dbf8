// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package obslog provides a package-level structured logger used throughout
// the engine. It wraps log/slog behind a small singleton so that handlers,
// stores, and validators can log without threading a logger through every
// call site.
package obslog

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(newDefault())
}

func newDefault() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if unstructuredLogs() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// unstructuredLogs reports whether human-readable (text) logging was
// requested via UNSTRUCTURED_LOGS. Defaults to true, matching local/dev use.
func unstructuredLogs() bool {
	v, ok := os.LookupEnv("UNSTRUCTURED_LOGS")
	if !ok {
		return true
	}
	switch v {
	case "false", "0":
		return false
	default:
		return true
	}
}

// SetLogger replaces the process-wide logger. Intended for host wiring and
// tests.
func SetLogger(l *slog.Logger) {
	singleton.Store(l)
}

func current() *slog.Logger { return singleton.Load() }

func Debug(msg string)                       { current().Debug(msg) }
func Debugf(format string, args ...any)       { current().Debug(sprintf(format, args...)) }
func Debugw(msg string, kv ...any)            { current().Debug(msg, kv...) }
func Info(msg string)                         { current().Info(msg) }
func Infof(format string, args ...any)        { current().Info(sprintf(format, args...)) }
func Infow(msg string, kv ...any)             { current().Info(msg, kv...) }
func Warn(msg string)                         { current().Warn(msg) }
func Warnf(format string, args ...any)        { current().Warn(sprintf(format, args...)) }
func Warnw(msg string, kv ...any)             { current().Warn(msg, kv...) }
func Error(msg string)                        { current().Error(msg) }
func Errorf(format string, args ...any)       { current().Error(sprintf(format, args...)) }
func Errorw(msg string, kv ...any)            { current().Error(msg, kv...) }

// DPanic logs at error level and never panics: request-handling code must
// stay up even when it hits a state it considers a bug, surfacing that bug
// to the caller as a server_error response instead of taking the process down.
func DPanic(msg string)                 { current().Error(msg) }
func DPanicf(format string, args ...any) { current().Error(sprintf(format, args...)) }
func DPanicw(msg string, kv ...any)     { current().Error(msg, kv...) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
