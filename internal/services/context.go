package services

import "context"

type ctxKey uint8

const (
	roomIDKey ctxKey = iota
	sessionIDKey
	stageKey
	requestIDKey
)

// withValue stores v under key unless v is the zero value.
func withValue[T comparable](ctx context.Context, key ctxKey, v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueFrom[T comparable](ctx context.Context, key ctxKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithRoomID tags ctx with the recorder room id. Zero leaves ctx unchanged.
func WithRoomID(ctx context.Context, id int64) context.Context {
	return withValue(ctx, roomIDKey, id)
}

// RoomIDFromContext returns the room id set by WithRoomID.
func RoomIDFromContext(ctx context.Context) (int64, bool) {
	return valueFrom[int64](ctx, roomIDKey)
}

// WithSessionID tags ctx with the broadcast session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom[string](ctx, sessionIDKey)
}

// WithStage tags ctx with the pipeline stage being run.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return valueFrom[string](ctx, stageKey)
}

// WithRequestID tags ctx with the API request or webhook delivery id that
// started the work. It is logged as correlation_id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom[string](ctx, requestIDKey)
}
