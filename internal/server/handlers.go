// Package server provides HTTP handlers and server setup for the agent gateway.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"agentgate/internal/agent"
	"agentgate/internal/core"
)

// Handler holds the HTTP handlers
type Handler struct {
	dispatcher *agent.Dispatcher
}

// NewHandler creates a new handler with the given dispatcher
func NewHandler(dispatcher *agent.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) bind(c echo.Context) (*core.ChatRequest, error) {
	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return nil, bindError(err)
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Chat godoc
//
//	@Summary		Chat with the agent
//	@Description	Sends the input to the model with the named functions offered as tools.
//	@Tags			agent
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		core.ChatRequest	true	"Chat request"
//	@Success		200		{object}	core.ChatResponse
//	@Failure		401		{object}	core.ErrorResponse
//	@Failure		404		{object}	core.ErrorResponse
//	@Failure		422		{object}	core.ErrorResponse
//	@Failure		500		{object}	core.ErrorResponse
//	@Router			/agent/chat [post]
func (h *Handler) Chat(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	if req.Streaming {
		return h.stream(c, req)
	}

	result, err := h.dispatcher.Chat(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, core.ChatResponse{Result: result})
}

// ChatStream godoc
//
//	@Summary		Stream a chat with the agent
//	@Description	Streams model output as server-sent events.
//	@Tags			agent
//	@Accept			json
//	@Produce		text/event-stream
//	@Security		BearerAuth
//	@Param			request	body		core.ChatRequest	true	"Chat request"
//	@Success		200		{string}	string				"SSE stream"
//	@Failure		404		{object}	core.ErrorResponse
//	@Failure		422		{object}	core.ErrorResponse
//	@Router			/agent/chat/stream [post]
func (h *Handler) ChatStream(c echo.Context) error {
	req, err := h.bind(c)
	if err != nil {
		return err
	}
	return h.stream(c, req)
}

// stream writes each chunk as an SSE data event. Errors raised before the
// first byte go through the error handler; later ones are sent in-band as
// an "error" event carrying the error envelope.
func (h *Handler) stream(c echo.Context, req *core.ChatRequest) error {
	ctx := c.Request().Context()
	chunks, err := h.dispatcher.Stream(ctx, req)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for chunk, err := range chunks {
		if err != nil {
			agentErr := toAgentError(err)
			if info := core.GetCallInfo(ctx); info != nil {
				info.ErrorCode = agentErr.Code
			}
			slog.ErrorContext(ctx, "stream failed",
				"code", agentErr.Code,
				"error", err,
				"request_id", core.GetRequestID(ctx),
			)
			writeErrorEvent(res, agentErr)
			return nil
		}
		if err := writeDataEvent(res, chunk); err != nil {
			// client went away
			slog.DebugContext(ctx, "stream write failed", "error", err, "request_id", core.GetRequestID(ctx))
			return nil
		}
	}
	return nil
}

// writeDataEvent sends chunk as one SSE event. Multi-line chunks use one
// data field per line so clients reassemble them with newlines.
func writeDataEvent(res *echo.Response, chunk string) error {
	var b strings.Builder
	for _, line := range strings.Split(chunk, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if _, err := res.Write([]byte(b.String())); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func writeErrorEvent(res *echo.Response, agentErr *core.AgentError) {
	payload, err := json.Marshal(agentErr.ToJSON())
	if err != nil {
		payload = []byte(`{"result":null,"error":"Internal server error","code":"INTERNAL_SERVER_ERROR"}`)
	}
	_, _ = fmt.Fprintf(res, "event: error\ndata: %s\n\n", payload)
	res.Flush()
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
