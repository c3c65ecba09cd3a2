// Package logging provides the structured logger shared by every core
// component: a thin façade over log/slog, bridged to github.com/go-logr/logr
// so that code preferring the logr.Logger calling convention gets the exact
// same sink as the package-level Debug/Info/Warn/Error helpers, which are
// what the core components in this module call.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
)

// Level mirrors slog's severity levels under Celix-native names.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses the string form of a level (case-insensitive), defaulting
// to LevelInfo for an unrecognised value — the same default the
// CELIX_LOGGING_DEFAULT_ACTIVE_LOG_LEVEL framework property documents.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var defaultLogger *slog.Logger

// Init initializes the package-level logger. It should be called once at
// framework startup; if it has not been called, the first logging call
// initializes an Info-level logger writing to stderr, so that libraries using
// this package can be exercised from tests without explicit setup.
func Init(level Level, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	defaultLogger = slog.New(handler)
}

func ensureInit() {
	if defaultLogger == nil {
		Init(LevelInfo, os.Stderr)
	}
}

func logInternal(level Level, subsystem string, err error, format string, args ...any) {
	ensureInit()
	if !defaultLogger.Enabled(context.Background(), level.slogLevel()) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.slogLevel(), msg, attrs...)
}

func Debug(subsystem, format string, args ...any) { logInternal(LevelDebug, subsystem, nil, format, args...) }
func Info(subsystem, format string, args ...any)  { logInternal(LevelInfo, subsystem, nil, format, args...) }
func Warn(subsystem, format string, args ...any)  { logInternal(LevelWarn, subsystem, nil, format, args...) }
func Error(subsystem string, err error, format string, args ...any) {
	logInternal(LevelError, subsystem, err, format, args...)
}

// Logr returns a logr.Logger backed by the same handler as the package-level
// helpers, named after subsystem, for code that works with logr.Logger
// values. No core component in this module takes a logr.Logger.
func Logr(subsystem string) logr.Logger {
	ensureInit()
	return logr.FromSlogHandler(defaultLogger.Handler()).WithName(subsystem)
}
