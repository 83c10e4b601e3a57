package providers

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"agentgate/internal/cache"
	"agentgate/internal/core"
	"agentgate/internal/observability"
	"agentgate/internal/telemetry"
)

// instrumentedProvider adds metrics, tracing, the optional generation cache
// and LLM_ERROR mapping around a provider.
type instrumentedProvider struct {
	inner     core.Provider
	cache     *cache.GenerationCache
	maxTokens int
}

// Instrument wraps p. generations may be nil to disable caching. maxTokens is
// the completion limit p was configured with and only affects cache keys.
func Instrument(p core.Provider, generations *cache.GenerationCache, maxTokens int) core.Provider {
	return &instrumentedProvider{inner: p, cache: generations, maxTokens: maxTokens}
}

func (w *instrumentedProvider) Name() string  { return w.inner.Name() }
func (w *instrumentedProvider) Model() string { return w.inner.Model() }

func (w *instrumentedProvider) Generate(ctx context.Context, prompt string, functions []core.FunctionSpec) (*core.Generation, error) {
	var key string
	if w.cache != nil {
		key = cache.Key(cache.Request{
			Model:     w.Model(),
			MaxTokens: w.maxTokens,
			Prompt:    prompt,
			Functions: functions,
		})
		if gen := w.cache.Get(ctx, key); gen != nil {
			slog.DebugContext(ctx, "generation cache hit", "key", key, "request_id", core.GetRequestID(ctx))
			return gen, nil
		}
	}

	ctx, span := telemetry.Start(ctx, "llm.generate", w.spanAttrs(functions)...)
	start := time.Now()

	gen, err := w.inner.Generate(ctx, prompt, functions)
	var usage *core.Usage
	if gen != nil {
		usage = &gen.Usage
	}
	observability.ObserveLLMCall(w.Model(), start, usage, err)
	telemetry.End(span, err)

	if err != nil {
		w.logFailure(ctx, "llm generate failed", err)
		return nil, core.NewLLMError(w.Name(), err)
	}

	if w.cache != nil {
		w.cache.Set(ctx, key, gen)
	}
	return gen, nil
}

func (w *instrumentedProvider) Stream(ctx context.Context, prompt string, functions []core.FunctionSpec) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		ctx, span := telemetry.Start(ctx, "llm.stream", w.spanAttrs(functions)...)
		start := time.Now()

		var usage *core.Usage
		var streamErr error
		defer func() {
			observability.ObserveLLMCall(w.Model(), start, usage, streamErr)
			telemetry.End(span, streamErr)
		}()

		for chunk, err := range w.inner.Stream(ctx, prompt, functions) {
			if err != nil {
				streamErr = err
				w.logFailure(ctx, "llm stream failed", err)
				yield(core.Chunk{}, core.NewLLMError(w.Name(), err))
				return
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (w *instrumentedProvider) spanAttrs(functions []core.FunctionSpec) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("llm.provider", w.Name()),
		attribute.String("llm.model", w.Model()),
		attribute.Int("llm.functions", len(functions)),
	}
}

func (w *instrumentedProvider) logFailure(ctx context.Context, msg string, err error) {
	slog.ErrorContext(ctx, msg,
		"provider", w.Name(),
		"model", w.Model(),
		"error", err,
		"request_id", core.GetRequestID(ctx),
	)
}
