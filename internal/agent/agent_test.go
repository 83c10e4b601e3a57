package agent

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/core"
	"agentgate/internal/functions"
)

type mockProvider struct {
	gen       *core.Generation
	err       error
	chunks    []core.Chunk
	streamErr error

	calls      int
	lastPrompt string
	lastSpecs  []core.FunctionSpec
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func (m *mockProvider) Generate(_ context.Context, prompt string, specs []core.FunctionSpec) (*core.Generation, error) {
	m.calls++
	m.lastPrompt = prompt
	m.lastSpecs = specs
	if m.err != nil {
		return nil, core.NewLLMError("mock", m.err)
	}
	return m.gen, nil
}

func (m *mockProvider) Stream(_ context.Context, prompt string, specs []core.FunctionSpec) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		m.calls++
		m.lastPrompt = prompt
		m.lastSpecs = specs
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield(core.Chunk{}, core.NewLLMError("mock", m.streamErr))
		}
	}
}

func newRegistry(t *testing.T) (*functions.Registry, *int) {
	t.Helper()
	executions := 0
	r := functions.NewRegistry()
	require.NoError(t, r.Register(functions.New("test_function", "Echoes its arguments", nil,
		func(_ context.Context, args map[string]any) (any, error) {
			executions++
			return args, nil
		})))
	require.NoError(t, r.Register(functions.New("greet", "Returns a greeting", nil,
		func(_ context.Context, args map[string]any) (any, error) {
			executions++
			return "hello " + args["name"].(string), nil
		})))
	require.NoError(t, r.Register(functions.New("failing", "Always fails", nil,
		func(context.Context, map[string]any) (any, error) {
			executions++
			return nil, errors.New("Test error")
		})))
	return r, &executions
}

func collect(t *testing.T, seq iter.Seq2[string, error]) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func requireCode(t *testing.T, err error, code core.ErrorCode) *core.AgentError {
	t.Helper()
	agentErr := core.AsAgentError(err)
	require.NotNil(t, agentErr, "expected *core.AgentError, got %v", err)
	assert.Equal(t, code, agentErr.Code)
	return agentErr
}

func TestChat_TextResponse(t *testing.T) {
	registry, _ := newRegistry(t)
	p := &mockProvider{gen: &core.Generation{Content: "Test response"}}
	d := New(p, registry)

	result, err := d.Chat(t.Context(), &core.ChatRequest{Input: "Test input"})
	require.NoError(t, err)
	assert.Equal(t, "Test response", result)
	assert.Equal(t, "Test input", p.lastPrompt)
	assert.Empty(t, p.lastSpecs)
}

func TestChat_EmptyContent(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{gen: &core.Generation{}}, registry)

	result, err := d.Chat(t.Context(), &core.ChatRequest{Input: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func TestChat_FunctionCall(t *testing.T) {
	registry, executions := newRegistry(t)
	p := &mockProvider{gen: &core.Generation{
		FunctionCall: &core.FunctionCall{Name: "test_function", Arguments: `{"param":"test_value"}`},
	}}
	d := New(p, registry)

	result, err := d.Chat(t.Context(), &core.ChatRequest{Input: "Test input", Functions: []string{"test_function"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"param": "test_value"}, result)
	assert.Equal(t, 1, *executions)

	require.Len(t, p.lastSpecs, 1)
	assert.Equal(t, "test_function", p.lastSpecs[0].Name)
	assert.Equal(t, "Echoes its arguments", p.lastSpecs[0].Description)
}

func TestChat_UnknownRequestedFunction(t *testing.T) {
	registry, _ := newRegistry(t)
	p := &mockProvider{gen: &core.Generation{Content: "unused"}}
	d := New(p, registry)

	_, err := d.Chat(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"nonexistent_function"}})
	agentErr := requireCode(t, err, core.CodeFunctionNotFound)
	assert.Equal(t, "nonexistent_function", agentErr.Details["function_name"])
	assert.Zero(t, p.calls, "nothing is sent upstream for unknown functions")
}

func TestChat_ModelCallsUnknownFunction(t *testing.T) {
	registry, executions := newRegistry(t)
	d := New(&mockProvider{gen: &core.Generation{
		FunctionCall: &core.FunctionCall{Name: "rm_rf", Arguments: `{}`},
	}}, registry)

	_, err := d.Chat(t.Context(), &core.ChatRequest{Input: "hi"})
	requireCode(t, err, core.CodeFunctionNotFound)
	assert.Zero(t, *executions)
}

func TestChat_FunctionError(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{gen: &core.Generation{
		FunctionCall: &core.FunctionCall{Name: "failing", Arguments: `{}`},
	}}, registry)

	_, err := d.Chat(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"failing"}})
	agentErr := requireCode(t, err, core.CodeFunctionExecution)
	assert.Equal(t, "Failed to execute function failing", agentErr.Message)
	assert.Equal(t, "Test error", agentErr.Details["error"])
}

func TestChat_LLMError(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{err: errors.New("API Error")}, registry)

	_, err := d.Chat(t.Context(), &core.ChatRequest{Input: "hi"})
	agentErr := requireCode(t, err, core.CodeLLM)
	assert.Equal(t, "API Error", agentErr.Message)
}

func TestChat_RecordsCallInfo(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{gen: &core.Generation{
		FunctionCall: &core.FunctionCall{Name: "test_function", Arguments: `{}`},
		Usage:        core.Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7},
	}}, registry)

	info := &core.CallInfo{}
	ctx := core.WithCallInfo(t.Context(), info)
	_, err := d.Chat(ctx, &core.ChatRequest{Input: "hi", Functions: []string{"test_function"}})
	require.NoError(t, err)

	assert.Equal(t, "mock", info.Provider)
	assert.Equal(t, "mock-model", info.Model)
	assert.Equal(t, "test_function", info.FunctionCalled)
	require.NotNil(t, info.Usage)
	assert.Equal(t, 7, info.Usage.TotalTokens)
	assert.False(t, info.Streaming)
}

func TestStream_TextChunks(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{chunks: []core.Chunk{
		{Content: "청크 1"},
		{Content: ""},
		{Content: "청크 2"},
		{Usage: &core.Usage{TotalTokens: 5}},
	}}, registry)

	info := &core.CallInfo{}
	seq, err := d.Stream(core.WithCallInfo(t.Context(), info), &core.ChatRequest{Input: "Test input"})
	require.NoError(t, err)

	chunks, err := collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"청크 1", "청크 2"}, chunks)
	assert.True(t, info.Streaming)
	require.NotNil(t, info.Usage)
	assert.Equal(t, 5, info.Usage.TotalTokens)
}

func TestStream_UsageOnContentChunk(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{chunks: []core.Chunk{
		{Content: "청크 1"},
		{Content: "청크 2", Usage: &core.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}},
	}}, registry)

	info := &core.CallInfo{}
	seq, err := d.Stream(core.WithCallInfo(t.Context(), info), &core.ChatRequest{Input: "Test input"})
	require.NoError(t, err)

	chunks, err := collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"청크 1", "청크 2"}, chunks)
	require.NotNil(t, info.Usage)
	assert.Equal(t, 5, info.Usage.TotalTokens)
}

func TestStream_FunctionCalls(t *testing.T) {
	registry, executions := newRegistry(t)
	d := New(&mockProvider{chunks: []core.Chunk{
		{Content: "before "},
		{FunctionCall: &core.FunctionCall{Name: "greet", Arguments: `{"name":"kim"}`}},
		{FunctionCall: &core.FunctionCall{Name: "test_function", Arguments: `{"param":"test_value"}`}},
	}}, registry)

	seq, err := d.Stream(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"greet", "test_function"}})
	require.NoError(t, err)

	chunks, err := collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"before ", "hello kim", `{"param":"test_value"}`}, chunks)
	assert.Equal(t, 2, *executions)
}

func TestStream_UnknownFunctionFailsBeforeStreaming(t *testing.T) {
	registry, _ := newRegistry(t)
	p := &mockProvider{chunks: []core.Chunk{{Content: "unused"}}}
	d := New(p, registry)

	seq, err := d.Stream(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"missing"}})
	assert.Nil(t, seq)
	requireCode(t, err, core.CodeFunctionNotFound)
	assert.Zero(t, p.calls)
}

func TestStream_LLMError(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{
		chunks:    []core.Chunk{{Content: "partial"}},
		streamErr: errors.New("Stream Error"),
	}, registry)

	seq, err := d.Stream(t.Context(), &core.ChatRequest{Input: "hi"})
	require.NoError(t, err)

	chunks, err := collect(t, seq)
	assert.Equal(t, []string{"partial"}, chunks)
	agentErr := requireCode(t, err, core.CodeLLM)
	assert.Equal(t, "Stream Error", agentErr.Message)
}

func TestStream_FunctionError(t *testing.T) {
	registry, _ := newRegistry(t)
	d := New(&mockProvider{chunks: []core.Chunk{
		{FunctionCall: &core.FunctionCall{Name: "failing", Arguments: `{}`}},
		{Content: "never sent"},
	}}, registry)

	seq, err := d.Stream(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"failing"}})
	require.NoError(t, err)

	chunks, err := collect(t, seq)
	assert.Empty(t, chunks)
	requireCode(t, err, core.CodeFunctionExecution)
}

func TestStream_ConsumerStopsEarly(t *testing.T) {
	registry, executions := newRegistry(t)
	d := New(&mockProvider{chunks: []core.Chunk{
		{Content: "first"},
		{FunctionCall: &core.FunctionCall{Name: "test_function", Arguments: `{}`}},
	}}, registry)

	seq, err := d.Stream(t.Context(), &core.ChatRequest{Input: "hi", Functions: []string{"test_function"}})
	require.NoError(t, err)
	for range seq {
		break
	}
	assert.Zero(t, *executions)
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"string", "plain", "plain"},
		{"integer", 4, "4"},
		{"float", 2.5, "2.5"},
		{"object", map[string]any{"a": 1}, `{"a":1}`},
		{"nil", nil, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatResult(tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
