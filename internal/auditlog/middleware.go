package auditlog

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"agentgate/internal/core"
)

// Middleware records one entry per request under cfg.PathPrefix.
//
// It installs a core.CallInfo in the request context for the dispatcher to
// fill in, and hands handler errors to the Echo error handler itself so the
// entry carries the final status code.
func Middleware(logger Writer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if logger == nil || !logger.Config().Enabled {
				return next(c)
			}
			cfg := logger.Config()

			req := c.Request()
			if cfg.PathPrefix != "" && !strings.HasPrefix(req.URL.Path, cfg.PathPrefix) {
				return next(c)
			}

			start := time.Now()
			entry := &LogEntry{
				ID:        uuid.NewString(),
				Timestamp: start,
				RequestID: requestID(c),
				Method:    req.Method,
				Path:      req.URL.Path,
				Streaming: strings.HasSuffix(req.URL.Path, "/stream"),
				Data: &LogData{
					ClientIP:  c.RealIP(),
					UserAgent: req.UserAgent(),
				},
			}

			body, truncated := readBody(req)
			if len(body) > 0 {
				entry.Functions = functionNames(body)
				if gjson.GetBytes(body, "streaming").Bool() {
					entry.Streaming = true
				}
				if cfg.LogBodies {
					entry.Data.RequestBody = decodeBody(body)
					entry.Data.BodyTruncated = truncated
				}
			}

			info := &core.CallInfo{}
			c.SetRequest(req.WithContext(core.WithCallInfo(req.Context(), info)))

			var capture *responseBodyCapture
			if cfg.LogBodies {
				capture = &responseBodyCapture{ResponseWriter: c.Response().Writer, body: &bytes.Buffer{}}
				c.Response().Writer = capture
			}

			err := next(c)
			if err != nil {
				c.Error(err)
				entry.Data.ErrorMessage = err.Error()
			}

			entry.DurationNs = time.Since(start).Nanoseconds()
			entry.StatusCode = c.Response().Status
			applyCallInfo(entry, info)

			if capture != nil && capture.body.Len() > 0 {
				entry.Data.ResponseBody = decodeBody(capture.body.Bytes())
				if capture.truncated {
					entry.Data.BodyTruncated = true
				}
			}

			logger.Write(entry)
			return nil
		}
	}
}

func requestID(c echo.Context) string {
	if id := core.GetRequestID(c.Request().Context()); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// readBody returns up to MaxBodyCapture bytes of the request body and
// restores it for the handler.
func readBody(req *http.Request) ([]byte, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, MaxBodyCapture+1))
	if err != nil {
		return nil, false
	}
	req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), req.Body))

	if len(body) > MaxBodyCapture {
		return body[:MaxBodyCapture], true
	}
	return body, false
}

// functionNames extracts the requested function names without decoding the
// whole request.
func functionNames(body []byte) []string {
	result := gjson.GetBytes(body, "functions")
	if !result.IsArray() {
		return nil
	}
	var names []string
	for _, name := range result.Array() {
		if name.Type == gjson.String {
			names = append(names, name.String())
		}
	}
	return names
}

func applyCallInfo(entry *LogEntry, info *core.CallInfo) {
	entry.Provider = info.Provider
	entry.Model = info.Model
	entry.FunctionCalled = info.FunctionCalled
	entry.ErrorCode = string(info.ErrorCode)
	if info.Streaming {
		entry.Streaming = true
	}
	if info.Usage != nil {
		entry.PromptTokens = info.Usage.PromptTokens
		entry.CompletionTokens = info.Usage.CompletionTokens
		entry.TotalTokens = info.Usage.TotalTokens
	}
}

// decodeBody returns JSON bodies decoded and anything else as valid UTF-8 text.
func decodeBody(b []byte) any {
	var parsed any
	if err := json.Unmarshal(b, &parsed); err == nil {
		return parsed
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// responseBodyCapture copies up to MaxBodyCapture bytes of the response.
type responseBodyCapture struct {
	http.ResponseWriter
	body      *bytes.Buffer
	truncated bool
}

func (r *responseBodyCapture) Write(b []byte) (int, error) {
	if room := MaxBodyCapture - r.body.Len(); room > 0 {
		if len(b) > room {
			r.body.Write(b[:room])
			r.truncated = true
		} else {
			r.body.Write(b)
		}
	} else if len(b) > 0 {
		r.truncated = true
	}
	return r.ResponseWriter.Write(b)
}

// Flush is required for SSE responses.
func (r *responseBodyCapture) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *responseBodyCapture) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
