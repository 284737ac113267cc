package types

import (
	"context"
	"errors"
)

// ErrRequestDeadline 是请求级截止时间的取消原因（context.Cause）。
// 下游据此区分"调用方不再等待"与单次调用超时，前者不算后端故障。
var ErrRequestDeadline = errors.New("request deadline exceeded")

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRequestID contextKey = "request_id"
	keyRunID     contextKey = "run_id"
	keyModel     contextKey = "target_model"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithRunID adds the compression run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts the compression run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithTargetModel adds the target model ID to context.
func WithTargetModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, keyModel, model)
}

// TargetModel extracts the target model ID from context.
func TargetModel(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyModel).(string)
	return v, ok && v != ""
}
