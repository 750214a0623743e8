// Package logger provides component-tagged logging for nostr-backup.
//
// Every log line carries a component label ("pool", "onion", "sync", ...)
// so that interleaved per-relay output from concurrent operations stays
// attributable. Log output goes to stderr; stdout is reserved for the
// plan/report the user asked for.
package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var level = new(slog.LevelVar)

var log atomic.Pointer[slog.Logger]

func init() {
	level.Set(slog.LevelInfo)
	log.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetDebug switches the global level between debug and info.
func SetDebug(debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// SetOutput replaces the logger's handler. Used by tests to capture output.
func SetOutput(l *slog.Logger) {
	log.Store(l)
}

func attrs(component string, fields map[string]any) []any {
	out := make([]any, 0, 2*(len(fields)+1))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) {
	log.Load().Info(msg, "component", component)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	log.Load().Info(msg, attrs(component, fields)...)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	log.Load().Warn(msg, attrs(component, fields)...)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	log.Load().Error(msg, attrs(component, fields)...)
}

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	log.Load().Debug(msg, attrs(component, fields)...)
}
