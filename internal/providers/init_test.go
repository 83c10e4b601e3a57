package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/config"
	"agentgate/internal/core"
)

func testFactory() *ProviderFactory {
	f := NewProviderFactory()
	f.Register("openai", func(cfg config.ProviderConfig, opts Options) (core.Provider, error) {
		if opts.HTTPClient == nil {
			return nil, assert.AnError
		}
		return &mockProvider{name: "openai", model: cfg.Model}, nil
	})
	return f
}

func TestInit(t *testing.T) {
	cfg := &config.Config{
		LLM:    config.LLMConfig{Provider: "openai"},
		OpenAI: config.ProviderConfig{Model: "gpt-test"},
		Cache:  config.CacheConfig{Type: "none"},
	}

	result, err := Init(cfg, testFactory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Close() })

	assert.Equal(t, "gpt-test", result.Provider.Model())
	assert.Nil(t, result.Cache)
}

func TestInit_LocalCache(t *testing.T) {
	cfg := &config.Config{
		LLM:    config.LLMConfig{Provider: "openai"},
		OpenAI: config.ProviderConfig{Model: "gpt-test"},
		Cache:  config.CacheConfig{Type: "local", TTL: time.Minute},
	}

	result, err := Init(cfg, testFactory())
	require.NoError(t, err)
	assert.NotNil(t, result.Cache)

	require.NoError(t, result.Close())
	require.NoError(t, result.Close())
}

func TestInit_Errors(t *testing.T) {
	_, err := Init(&config.Config{}, nil)
	assert.Error(t, err)

	_, err = Init(&config.Config{LLM: config.LLMConfig{Provider: "missing"}}, testFactory())
	assert.ErrorContains(t, err, "unknown provider type")

	_, err = Init(&config.Config{
		LLM:   config.LLMConfig{Provider: "openai"},
		Cache: config.CacheConfig{Type: "bogus"},
	}, testFactory())
	assert.ErrorContains(t, err, "unknown cache type")
}
