// Package logger configures the application's structured logger (log/slog,
// JSON output) and carries request- or task-scoped loggers through
// context.Context.
package logger
