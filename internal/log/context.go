package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	sweepIDKey   ctxKey = "sweep_id"
)

// ContextWithRequestID tags ctx with the API request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// ContextWithSweepID tags ctx with the recovery sweep id.
func ContextWithSweepID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sweepIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

func SweepIDFromContext(ctx context.Context) string { return stringValue(ctx, sweepIDKey) }

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithContext adds the request, sweep and trace ids found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	fields := map[string]string{
		FieldRequestID: RequestIDFromContext(ctx),
		FieldSweepID:   SweepIDFromContext(ctx),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields[FieldTraceID] = sc.TraceID().String()
	}
	builder := logger.With()
	added := false
	for k, v := range fields {
		if v != "" {
			builder = builder.Str(k, v)
			added = true
		}
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
