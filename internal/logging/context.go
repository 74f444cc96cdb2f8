package logging

import (
	"context"
	"log/slog"

	"avatarforge/internal/services"
)

// contextKeys maps request-scoped values to their log keys, in the order
// they appear on a line.
var contextKeys = []struct {
	key     string
	extract func(context.Context) (string, bool)
}{
	{FieldJobID, services.JobIDFromContext},
	{FieldStage, services.StageFromContext},
	{FieldCorrelationID, services.RequestIDFromContext},
}

// ContextFields returns the job, stage and request attributes carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	for _, k := range contextKeys {
		if value, ok := k.extract(ctx); ok {
			fields = append(fields, slog.String(k.key, value))
		}
	}
	return fields
}

// WithContext binds the fields from ContextFields to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
