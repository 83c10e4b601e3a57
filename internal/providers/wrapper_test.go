package providers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/cache"
	"agentgate/internal/core"
)

func TestInstrument_GenerateWrapsErrors(t *testing.T) {
	p := Instrument(&mockProvider{name: "openai", model: "gpt-test", err: errors.New("API Error")}, nil, 0)

	_, err := p.Generate(t.Context(), "hi", nil)
	require.Error(t, err)

	agentErr := core.AsAgentError(err)
	require.NotNil(t, agentErr)
	assert.Equal(t, core.CodeLLM, agentErr.Code)
	assert.Equal(t, "API Error", agentErr.Message)
	assert.Equal(t, "openai", agentErr.Details["provider"])
}

func TestInstrument_GeneratePassesThrough(t *testing.T) {
	gen := &core.Generation{Model: "gpt-test", Content: "hello"}
	p := Instrument(&mockProvider{name: "openai", model: "gpt-test", gen: gen}, nil, 0)

	got, err := p.Generate(t.Context(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-test", p.Model())
}

func TestInstrument_GenerateUsesCache(t *testing.T) {
	inner := &mockProvider{
		name:  "openai",
		model: "gpt-test",
		gen:   &core.Generation{Model: "gpt-test", Content: "cached"},
	}
	generations := cache.NewGenerationCache(cache.NewLocalStore(), time.Minute)
	p := Instrument(inner, generations, 4000)

	for range 3 {
		got, err := p.Generate(t.Context(), "same prompt", nil)
		require.NoError(t, err)
		assert.Equal(t, "cached", got.Content)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := p.Generate(t.Context(), "other prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestInstrument_CacheKeyIncludesMaxTokens(t *testing.T) {
	inner := &mockProvider{
		name:  "openai",
		model: "gpt-test",
		gen:   &core.Generation{Model: "gpt-test", Content: "cached"},
	}
	generations := cache.NewGenerationCache(cache.NewLocalStore(), time.Minute)

	_, err := Instrument(inner, generations, 4000).Generate(t.Context(), "same prompt", nil)
	require.NoError(t, err)
	_, err = Instrument(inner, generations, 256).Generate(t.Context(), "same prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestInstrument_GenerateErrorsAreNotCached(t *testing.T) {
	inner := &mockProvider{name: "openai", model: "gpt-test", err: errors.New("API Error")}
	p := Instrument(inner, cache.NewGenerationCache(cache.NewLocalStore(), time.Minute), 4000)

	for range 2 {
		_, err := p.Generate(t.Context(), "hi", nil)
		require.Error(t, err)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestInstrument_Stream(t *testing.T) {
	usage := &core.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	p := Instrument(&mockProvider{
		name:   "openai",
		model:  "gpt-test",
		chunks: []core.Chunk{{Content: "청크 1"}, {Content: "청크 2"}, {Usage: usage}},
	}, nil, 0)

	var contents []string
	var sawUsage bool
	for chunk, err := range p.Stream(t.Context(), "hi", nil) {
		require.NoError(t, err)
		if chunk.Usage != nil {
			sawUsage = true
			continue
		}
		contents = append(contents, chunk.Content)
	}
	assert.Equal(t, []string{"청크 1", "청크 2"}, contents)
	assert.True(t, sawUsage)
}

func TestInstrument_StreamWrapsErrors(t *testing.T) {
	p := Instrument(&mockProvider{
		name:      "openai",
		model:     "gpt-test",
		chunks:    []core.Chunk{{Content: "partial"}},
		streamErr: errors.New("Stream Error"),
	}, nil, 0)

	var contents []string
	var gotErr error
	for chunk, err := range p.Stream(t.Context(), "hi", nil) {
		if err != nil {
			gotErr = err
			break
		}
		contents = append(contents, chunk.Content)
	}

	assert.Equal(t, []string{"partial"}, contents)
	agentErr := core.AsAgentError(gotErr)
	require.NotNil(t, agentErr)
	assert.Equal(t, core.CodeLLM, agentErr.Code)
	assert.Equal(t, "Stream Error", agentErr.Message)
}

func TestInstrument_StreamStopsWhenConsumerBreaks(t *testing.T) {
	p := Instrument(&mockProvider{
		name:   "openai",
		model:  "gpt-test",
		chunks: []core.Chunk{{Content: "a"}, {Content: "b"}, {Content: "c"}},
	}, nil, 0)

	n := 0
	for range p.Stream(t.Context(), "hi", nil) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
