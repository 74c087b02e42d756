package queue

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// slogAdapter routes asynq's internal logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

var _ asynq.Logger = slogAdapter{}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a slogAdapter) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// logLevel maps the slog level enabled on logger to an asynq level.
func logLevel(logger *slog.Logger) asynq.LogLevel {
	switch {
	case logger.Enabled(context.Background(), slog.LevelDebug):
		return asynq.DebugLevel
	case logger.Enabled(context.Background(), slog.LevelInfo):
		return asynq.InfoLevel
	case logger.Enabled(context.Background(), slog.LevelWarn):
		return asynq.WarnLevel
	default:
		return asynq.ErrorLevel
	}
}
