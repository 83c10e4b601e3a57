// Package core provides core types and interfaces for the agent gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable code returned to clients in the error envelope.
type ErrorCode string

const (
	// CodeValidation indicates a request body that failed schema validation (422)
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	// CodeFunctionNotFound indicates an unknown function name (404)
	CodeFunctionNotFound ErrorCode = "FUNCTION_NOT_FOUND"
	// CodeFunctionExecution indicates a registered function failed (500)
	CodeFunctionExecution ErrorCode = "FUNCTION_EXECUTION_ERROR"
	// CodeInvalidFunction indicates a malformed function definition (400)
	CodeInvalidFunction ErrorCode = "INVALID_FUNCTION"
	// CodeLLM indicates the upstream model call failed (500)
	CodeLLM ErrorCode = "LLM_ERROR"
	// CodeUnauthorized indicates a missing or wrong master key (401)
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// CodeInternal indicates an unexpected failure (500)
	CodeInternal ErrorCode = "INTERNAL_SERVER_ERROR"
)

// AgentError is the base error type for all gateway errors
type AgentError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"error"`
	StatusCode int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *AgentError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *AgentError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Code {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeFunctionNotFound:
		return http.StatusNotFound
	case CodeInvalidFunction:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON envelope written for every failed request.
type ErrorResponse struct {
	Result  any            `json:"result"`
	Error   string         `json:"error"`
	Code    ErrorCode      `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// ToJSON converts the error to the client-facing envelope
func (e *AgentError) ToJSON() ErrorResponse {
	return ErrorResponse{
		Result:  nil,
		Error:   e.Message,
		Code:    e.Code,
		Details: e.Details,
	}
}

// AsAgentError returns the *AgentError in err's chain, or nil.
func AsAgentError(err error) *AgentError {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr
	}
	return nil
}

// NewValidationError creates a validation error (422) listing the failing fields
func NewValidationError(fieldErrors []map[string]any) *AgentError {
	return &AgentError{
		Code:       CodeValidation,
		Message:    "Invalid request",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]any{"errors": fieldErrors},
	}
}

// NewFunctionNotFoundError creates a not found error (404) for an unknown function name
func NewFunctionNotFoundError(name string) *AgentError {
	return &AgentError{
		Code:       CodeFunctionNotFound,
		Message:    fmt.Sprintf("Function %s not found", name),
		StatusCode: http.StatusNotFound,
		Details:    map[string]any{"function_name": name},
	}
}

// NewFunctionExecutionError creates a function execution error (500)
func NewFunctionExecutionError(name string, err error) *AgentError {
	cause := ""
	if err != nil {
		cause = err.Error()
	}
	return &AgentError{
		Code:       CodeFunctionExecution,
		Message:    fmt.Sprintf("Failed to execute function %s", name),
		StatusCode: http.StatusInternalServerError,
		Details:    map[string]any{"function_name": name, "error": cause},
		Err:        err,
	}
}

// NewInvalidFunctionError creates an invalid function error (400)
func NewInvalidFunctionError(message string) *AgentError {
	return &AgentError{
		Code:       CodeInvalidFunction,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewLLMError creates an upstream model error (500)
func NewLLMError(provider string, err error) *AgentError {
	message := "LLM request failed"
	if err != nil {
		message = err.Error()
	}
	details := map[string]any{}
	if provider != "" {
		details["provider"] = provider
	}
	return &AgentError{
		Code:       CodeLLM,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Details:    details,
		Err:        err,
	}
}

// NewUnauthorizedError creates an authentication error (401)
func NewUnauthorizedError(message string) *AgentError {
	return &AgentError{
		Code:       CodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInternalError creates an internal error (500) that hides the cause from clients
func NewInternalError(err error) *AgentError {
	return &AgentError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
