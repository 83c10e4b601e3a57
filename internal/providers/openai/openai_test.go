package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/config"
	"agentgate/internal/core"
	"agentgate/internal/providers"
)

var calculateSpec = core.FunctionSpec{
	Name:        "calculate",
	Description: "Evaluate an arithmetic expression",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"expression": map[string]any{"type": "string"}},
		"required":   []string{"expression"},
	},
}

// newTestProvider points a provider at handler with retries disabled.
func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewWithOptions(config.ProviderConfig{
		APIKey:    "test-api-key",
		Model:     "gpt-4-turbo",
		MaxTokens: 4000,
		BaseURL:   srv.URL,
	}, option.WithMaxRetries(0))
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, event := range events {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", event)
	}
	_, _ = io.WriteString(w, "data: [DONE]\n\n")
}

func TestNew(t *testing.T) {
	_, err := New(config.ProviderConfig{}, providers.Options{})
	assert.Error(t, err, "api key is required")

	p, err := New(config.ProviderConfig{APIKey: "k"}, providers.Options{HTTPClient: http.DefaultClient})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultModel, p.Model())
}

func TestGenerate_SendsPromptToolsAndMaxTokens(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-123", "object": "chat.completion", "created": 1677652288, "model": "gpt-4-turbo",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "테스트 응답"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`)
	})

	gen, err := p.Generate(t.Context(), "테스트 입력", []core.FunctionSpec{calculateSpec})
	require.NoError(t, err)

	assert.Equal(t, "테스트 응답", gen.Content)
	assert.Nil(t, gen.FunctionCall)
	assert.Equal(t, core.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, gen.Usage)

	assert.Equal(t, "gpt-4-turbo", body["model"])
	assert.EqualValues(t, 4000, body["max_tokens"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
	assert.Equal(t, "테스트 입력", messages[0].(map[string]any)["content"])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "calculate", fn["name"])
	assert.Equal(t, "Evaluate an arithmetic expression", fn["description"])
	assert.Equal(t, "object", fn["parameters"].(map[string]any)["type"])
}

func TestGenerate_NoFunctionsOmitsTools(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4-turbo",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":null}}]}`)
	})

	gen, err := p.Generate(t.Context(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "", gen.Content)
	assert.NotContains(t, body, "tools")
}

func TestGenerate_ToolCall(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-456", "object": "chat.completion", "created": 1, "model": "gpt-4-turbo",
			"choices": [{"index": 0, "finish_reason": "tool_calls",
				"message": {"role": "assistant", "content": null, "tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "calculate", "arguments": "{\"expression\":\"2+2\"}"}},
					{"id": "call_2", "type": "function", "function": {"name": "other", "arguments": "{}"}}
				]}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`)
	})

	gen, err := p.Generate(t.Context(), "2+2?", []core.FunctionSpec{calculateSpec})
	require.NoError(t, err)
	require.NotNil(t, gen.FunctionCall)
	assert.Equal(t, &core.FunctionCall{ID: "call_1", Name: "calculate", Arguments: `{"expression":"2+2"}`}, gen.FunctionCall)
}

func TestGenerate_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	})

	_, err := p.Generate(t.Context(), "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestGenerate_NoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-4-turbo","choices":[]}`)
	})

	_, err := p.Generate(t.Context(), "hi", nil)
	assert.Error(t, err)
}

func collect(t *testing.T, p *Provider, functions []core.FunctionSpec) ([]core.Chunk, error) {
	t.Helper()
	var chunks []core.Chunk
	for chunk, err := range p.Stream(t.Context(), "prompt", functions) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestStream_Content(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeSSE(w,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[{"index":0,"delta":{"role":"assistant","content":"청크 1"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[{"index":0,"delta":{"content":"청크 2"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-4-turbo","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
		)
	})

	chunks, err := collect(t, p, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "청크 1", chunks[0].Content)
	assert.Equal(t, "청크 2", chunks[1].Content)
	assert.Equal(t, &core.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, chunks[2].Usage)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
}

func TestStream_ToolCallFragmentsAreReassembled(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"계산 중"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculate","arguments":""}}]}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"expression\":"}}]}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"2+2\"}"}}]}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		)
	})

	chunks, err := collect(t, p, []core.FunctionSpec{calculateSpec})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "계산 중", chunks[0].Content)
	assert.Equal(t, &core.FunctionCall{ID: "call_1", Name: "calculate", Arguments: `{"expression":"2+2"}`}, chunks[1].FunctionCall)
}

func TestStream_UnfinishedToolCallFlushedAtEnd(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculate","arguments":"{}"}}]}}]}`,
		)
	})

	chunks, err := collect(t, p, []core.FunctionSpec{calculateSpec})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "calculate", chunks[0].FunctionCall.Name)
}

func TestStream_UpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"Stream Error","type":"server_error"}}`)
	})

	_, err := collect(t, p, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "500"))
}

func TestStream_ConsumerCanStopEarly(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"a"}}]}`,
			`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"b"}}]}`,
		)
	})

	var seen []string
	for chunk, err := range p.Stream(t.Context(), "prompt", nil) {
		require.NoError(t, err)
		seen = append(seen, chunk.Content)
		break
	}
	assert.Equal(t, []string{"a"}, seen)
}

func TestToolCallBuffer(t *testing.T) {
	b := newToolCallBuffer()
	b.add(1, "call_b", "second", "{}")
	b.add(0, "call_a", "first", `{"x":`)
	b.add(0, "", "", `1}`)
	b.add(2, "", "", "orphan fragment")

	calls := b.drain()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, `{"x":1}`, calls[0].Arguments)
	assert.Equal(t, "second", calls[1].Name)
	assert.Empty(t, b.drain())
}
