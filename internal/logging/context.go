package logging

import (
	"context"
	"log/slog"

	"afterlive/internal/services"
)

// WithContext binds the room, session, stage and correlation ids carried by
// ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.RoomIDFromContext(ctx); ok {
		args = append(args, FieldRoomID, id)
	}
	if id, ok := services.SessionIDFromContext(ctx); ok {
		args = append(args, FieldSessionID, id)
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		args = append(args, FieldStage, stage)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, FieldCorrelationID, id)
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
