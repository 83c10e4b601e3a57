package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"agentgate/internal/core"
	"agentgate/internal/observability"
	"agentgate/internal/telemetry"
)

// DecodeArguments parses the raw JSON argument object produced by the model.
// Empty input decodes to an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid function arguments: %w", err)
	}
	return args, nil
}

// Invoke executes fn with the raw JSON arguments of a model function call,
// recording call count, duration and errors. Any failure is returned as a
// FUNCTION_EXECUTION_ERROR.
func Invoke(ctx context.Context, fn core.Function, rawArgs string) (result any, err error) {
	name := fn.Name()
	start := time.Now()

	ctx, span := telemetry.Start(ctx, "function.execute", attribute.String("function.name", name))
	observability.FunctionCalls.WithLabelValues(name).Inc()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		observability.FunctionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.FunctionErrors.WithLabelValues(name, observability.ErrorType(err)).Inc()
			slog.ErrorContext(ctx, "function execution failed",
				"function", name,
				"error", err,
				"request_id", core.GetRequestID(ctx),
			)
			err = core.NewFunctionExecutionError(name, err)
			result = nil
		}
		telemetry.End(span, err)
	}()

	args, err := DecodeArguments(rawArgs)
	if err != nil {
		return nil, err
	}
	return fn.Execute(ctx, args)
}
