package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"agentgate/internal/core"
)

// Transport-level codes for failures raised by Echo itself rather than by
// the gateway (unknown route, oversized body).
const (
	codeNotFound         core.ErrorCode = "NOT_FOUND"
	codeMethodNotAllowed core.ErrorCode = "METHOD_NOT_ALLOWED"
	codeBadRequest       core.ErrorCode = "BAD_REQUEST"
	codeRequestTooLarge  core.ErrorCode = "REQUEST_TOO_LARGE"
)

// toAgentError converts any handler error to the client-facing error type.
// Unknown errors become INTERNAL_SERVER_ERROR and keep their cause private.
func toAgentError(err error) *core.AgentError {
	if agentErr := core.AsAgentError(err); agentErr != nil {
		return agentErr
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code := codeBadRequest
		switch httpErr.Code {
		case http.StatusNotFound:
			code = codeNotFound
		case http.StatusMethodNotAllowed:
			code = codeMethodNotAllowed
		case http.StatusRequestEntityTooLarge:
			code = codeRequestTooLarge
		case http.StatusUnauthorized:
			code = core.CodeUnauthorized
		}
		if httpErr.Code >= http.StatusInternalServerError {
			return core.NewInternalError(err)
		}
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			message = m
		}
		return &core.AgentError{Code: code, Message: message, StatusCode: httpErr.Code, Err: err}
	}

	return core.NewInternalError(err)
}

// errorHandler writes every failure as the JSON error envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	agentErr := toAgentError(err)
	ctx := c.Request().Context()
	if info := core.GetCallInfo(ctx); info != nil {
		info.ErrorCode = agentErr.Code
	}

	status := agentErr.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed",
			"code", agentErr.Code,
			"error", err,
			"path", c.Request().URL.Path,
			"request_id", core.GetRequestID(ctx),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, agentErr.ToJSON())
}
