package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns a copy of ctx carrying logger
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides domain-level structured logging helpers
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogTransactionSubmitted logs a stored transaction with its footprint
func (sl *StructuredLogger) LogTransactionSubmitted(ctx context.Context, ownerID, id, category string, priceCents int64, kgCO2e float64) {
	fields := NewFields().
		WithOwner(ownerID).
		WithTransaction(id, category, priceCents, kgCO2e).
		WithOperation(OpCreate).
		ToSlice()

	sl.logger.InfoContext(ctx, "Transaction stored", fields...)
}

// LogReload logs the outcome of a metrics reload
func (sl *StructuredLogger) LogReload(ctx context.Context, ownerID string, months int, force bool, durationMs int64) {
	fields := NewFields().
		WithOwner(ownerID).
		WithOperation(OpReload).
		ToSlice()
	fields = append(fields, FieldMonths, months, FieldForce, force, FieldDuration, durationMs)

	sl.logger.InfoContext(ctx, "Profile metrics reloaded", fields...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
