// Package logging configures structured JSON logging for the swapring
// daemon and names the attribute conventions the engine logs under.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared across the engine and the ops surface. Operation
// and correlation ids tie log lines back to the signed event stream.
const (
	KeyOperation   = "operation"
	KeyCorrelation = "correlation_id"
	KeyCycle       = "cycle_id"
)

// New builds a JSON logger writing to w with the service and environment
// stamped on every line. Production environments log at info; everything
// else logs at debug.
func New(w io.Writer, service, env string) *slog.Logger {
	return slog.New(handlerFor(w, service, env))
}

// Setup installs the process-wide logger: the slog default plus a bridge
// for the standard library logger so dependency output stays structured.
func Setup(service, env string) *slog.Logger {
	handler := handlerFor(os.Stdout, service, env)
	base := slog.New(handler)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// ForOperation scopes a logger to one engine operation invocation.
func ForOperation(logger *slog.Logger, operationID, correlationID string) *slog.Logger {
	return logger.With(KeyOperation, operationID, KeyCorrelation, correlationID)
}

func handlerFor(w io.Writer, service, env string) slog.Handler {
	env = strings.TrimSpace(env)
	level := slog.LevelDebug
	if env == "production" || env == "prod" {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return handler.WithAttrs(attrs)
}
