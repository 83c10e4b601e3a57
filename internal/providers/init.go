package providers

import (
	"errors"
	"fmt"
	"log/slog"

	"agentgate/config"
	"agentgate/internal/cache"
	"agentgate/internal/core"
	"agentgate/internal/httpclient"
)

// InitResult holds the configured upstream and the resources it owns.
type InitResult struct {
	Provider core.Provider
	Cache    *cache.GenerationCache
}

// Close releases the generation cache backend. Safe to call more than once.
func (r *InitResult) Close() error {
	if r.Cache == nil {
		return nil
	}
	err := r.Cache.Close()
	r.Cache = nil
	return err
}

// Init builds the provider selected by cfg.LLM.Provider and wraps it with
// instrumentation and, when enabled, the generation cache.
//
// The caller must call InitResult.Close() during shutdown.
func Init(cfg *config.Config, factory *ProviderFactory) (*InitResult, error) {
	if factory == nil {
		return nil, errors.New("provider factory is required")
	}

	clientCfg := httpclient.DefaultConfig()
	if cfg.HTTP.Timeout > 0 {
		clientCfg.Timeout = cfg.HTTP.Timeout
	}
	if cfg.HTTP.ResponseHeaderTimeout > 0 {
		clientCfg.ResponseHeaderTimeout = cfg.HTTP.ResponseHeaderTimeout
	}

	p, err := factory.Create(cfg.LLM.Provider, cfg.ActiveProvider(), Options{
		HTTPClient: httpclient.NewHTTPClient(clientCfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", cfg.LLM.Provider, err)
	}

	result := &InitResult{}
	store, err := cache.New(cfg.Cache)
	switch {
	case err == nil:
		result.Cache = cache.NewGenerationCache(store, cfg.Cache.TTL)
	case errors.Is(err, cache.ErrDisabled):
	default:
		return nil, fmt.Errorf("init generation cache: %w", err)
	}

	result.Provider = Instrument(p, result.Cache, cfg.ActiveProvider().MaxTokens)
	slog.Info("provider initialized",
		"provider", p.Name(),
		"model", p.Model(),
		"cache", cfg.Cache.Type,
	)
	return result, nil
}
