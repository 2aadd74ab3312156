package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"afterlive/internal/logging"
	"afterlive/internal/services"
)

const tracerName = "afterlive"

// InitTracing installs an OTLP/gRPC tracer provider when endpoint is set.
// Without an endpoint the global no-op provider stays in place. The returned
// shutdown flushes pending spans.
func InitTracing(ctx context.Context, endpoint, serviceName, version string, logger *slog.Logger) (func(context.Context) error, error) {
	if endpoint == "" {
		if logger != nil {
			logger.Debug("tracing disabled", logging.String(logging.FieldEventType, "tracing_disabled"))
		}
		return func(context.Context) error { return nil }, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(initCtx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.New(initCtx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	if logger != nil {
		logger.Info("tracing initialized",
			logging.String(logging.FieldEventType, "tracing_initialized"),
			logging.String("endpoint", endpoint),
		)
	}
	return provider.Shutdown, nil
}

// StartSpan starts a span tagged with the room, session and request ids on ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if id, ok := services.RoomIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int64("afterlive.room_id", id))
	}
	if sid, ok := services.SessionIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("afterlive.session_id", sid))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, attribute.String("correlation_id", rid))
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
