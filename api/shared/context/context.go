package context

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

func NewContextWithLogger(ctx context.Context, log *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// LoggerFromContext returns the request logger, or a no-op logger when none is set.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok && log != nil {
		return log
	}
	return zap.NewNop().Sugar()
}
