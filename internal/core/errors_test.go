package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *AgentError
		expected int
	}{
		{"explicit status code", &AgentError{Code: CodeLLM, StatusCode: http.StatusBadGateway}, http.StatusBadGateway},
		{"validation default", &AgentError{Code: CodeValidation}, http.StatusUnprocessableEntity},
		{"not found default", &AgentError{Code: CodeFunctionNotFound}, http.StatusNotFound},
		{"invalid function default", &AgentError{Code: CodeInvalidFunction}, http.StatusBadRequest},
		{"unauthorized default", &AgentError{Code: CodeUnauthorized}, http.StatusUnauthorized},
		{"execution default", &AgentError{Code: CodeFunctionExecution}, http.StatusInternalServerError},
		{"llm default", &AgentError{Code: CodeLLM}, http.StatusInternalServerError},
		{"unknown code", &AgentError{Code: "SOMETHING"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.HTTPStatusCode())
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("division by zero")

	tests := []struct {
		name    string
		err     *AgentError
		code    ErrorCode
		status  int
		message string
	}{
		{"function not found", NewFunctionNotFoundError("missing"), CodeFunctionNotFound, 404, "Function missing not found"},
		{"function execution", NewFunctionExecutionError("calculate", cause), CodeFunctionExecution, 500, "Failed to execute function calculate"},
		{"invalid function", NewInvalidFunctionError("function name is required"), CodeInvalidFunction, 400, "function name is required"},
		{"llm", NewLLMError("openai", errors.New("API Error")), CodeLLM, 500, "API Error"},
		{"unauthorized", NewUnauthorizedError("invalid master key"), CodeUnauthorized, 401, "invalid master key"},
		{"internal", NewInternalError(cause), CodeInternal, 500, "Internal server error"},
		{"validation", NewValidationError(nil), CodeValidation, 422, "Invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatusCode())
			assert.Equal(t, tt.message, tt.err.Message)
		})
	}
}

func TestFunctionExecutionError_Details(t *testing.T) {
	cause := errors.New("Invalid characters in expression")
	err := NewFunctionExecutionError("calculate", cause)

	assert.Equal(t, "calculate", err.Details["function_name"])
	assert.Equal(t, "Invalid characters in expression", err.Details["error"])
	assert.ErrorIs(t, err, cause)
}

func TestAgentError_ToJSON(t *testing.T) {
	err := NewFunctionNotFoundError("nonexistent_function")

	data, marshalErr := json.Marshal(err.ToJSON())
	require.NoError(t, marshalErr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Contains(t, body, "result")
	assert.Nil(t, body["result"])
	assert.Equal(t, "Function nonexistent_function not found", body["error"])
	assert.Equal(t, "FUNCTION_NOT_FOUND", body["code"])
	assert.Equal(t, map[string]any{"function_name": "nonexistent_function"}, body["details"])
}

func TestAsAgentError(t *testing.T) {
	inner := NewLLMError("openai", errors.New("timeout"))
	wrapped := fmt.Errorf("generate: %w", inner)

	assert.Same(t, inner, AsAgentError(wrapped))
	assert.Nil(t, AsAgentError(errors.New("plain")))
	assert.Nil(t, AsAgentError(nil))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(t.Context(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(t.Context()))
}

func TestCallInfoContext(t *testing.T) {
	assert.Nil(t, GetCallInfo(t.Context()))

	info := &CallInfo{Model: "gpt-4-turbo"}
	ctx := WithCallInfo(t.Context(), info)
	GetCallInfo(ctx).FunctionCalled = "calculate"

	assert.Equal(t, "calculate", info.FunctionCalled)
}
