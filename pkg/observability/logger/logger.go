// Package logger provides the structured logging contract used across the
// user directory and its storage backends.
package logger

import (
	"context"
)

// Logger is a leveled, key/value structured logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that adds args to every entry.
	With(args ...any) Logger

	// WithContext returns a child logger enriched with the operation id found in ctx.
	WithContext(ctx context.Context) Logger
}

type operationIDKey struct{}

// ContextWithOperationID tags ctx with an operation id picked up by WithContext.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationIDKey{}, id)
}

func operationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(operationIDKey{}).(string)
	return id
}

type nopLogger struct{}

// NewNop returns a Logger that discards everything.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any)                  {}
func (nopLogger) Info(string, ...any)                   {}
func (nopLogger) Warn(string, ...any)                   {}
func (nopLogger) Error(string, ...any)                  {}
func (n nopLogger) With(...any) Logger                  { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
