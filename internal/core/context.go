package core

import "context"

type contextKey string

const requestIDKey contextKey = "request-id"

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

const callInfoKey contextKey = "call-info"

// CallInfo collects what a dispatch did so outer layers (the call log) can
// record it after the handler returns. Fields are filled in by the dispatcher.
type CallInfo struct {
	Provider       string
	Model          string
	FunctionCalled string
	Usage          *Usage
	Streaming      bool
	// ErrorCode is set when a failure is reported in-band, after the
	// response status was already written (stream errors).
	ErrorCode ErrorCode
}

// WithCallInfo returns a new context carrying info.
func WithCallInfo(ctx context.Context, info *CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey, info)
}

// GetCallInfo returns the CallInfo stored in ctx, or nil.
func GetCallInfo(ctx context.Context) *CallInfo {
	info, _ := ctx.Value(callInfoKey).(*CallInfo)
	return info
}
