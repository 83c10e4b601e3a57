package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"agentgate/internal/core"
)

// GenerationCache stores non-streaming upstream generations. Lookups and
// writes never fail the request: store errors are logged and treated as a miss.
type GenerationCache struct {
	store Store
	ttl   time.Duration
}

// NewGenerationCache wraps store. ttl applies to every entry.
func NewGenerationCache(store Store, ttl time.Duration) *GenerationCache {
	return &GenerationCache{store: store, ttl: ttl}
}

// Request is the part of an upstream request that determines its generation.
type Request struct {
	Model     string
	MaxTokens int
	Prompt    string
	Functions []core.FunctionSpec
}

// Key derives the cache key from everything that shapes the upstream request.
// Function order does not matter; names, descriptions and parameter schemas do.
func Key(req Request) string {
	functions := slices.Clone(req.Functions)
	sort.SliceStable(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })

	d := xxhash.New()
	_, _ = d.WriteString(req.Model)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(req.MaxTokens))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(req.Prompt)
	for _, fn := range functions {
		// map keys are marshaled in sorted order, so the schema encoding is stable
		params, _ := json.Marshal(fn.Parameters)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(fn.Name)
		_, _ = d.WriteString("\x01")
		_, _ = d.WriteString(fn.Description)
		_, _ = d.WriteString("\x01")
		_, _ = d.Write(params)
	}
	return "gen:" + strconv.FormatUint(d.Sum64(), 16)
}

// Get returns the cached generation for key, or nil on miss or error.
func (c *GenerationCache) Get(ctx context.Context, key string) *core.Generation {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "generation cache get failed", "key", key, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}

	var gen core.Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		slog.WarnContext(ctx, "generation cache entry unreadable", "key", key, "error", err)
		_ = c.store.Delete(ctx, key)
		return nil
	}
	return &gen
}

// Set stores gen under key.
func (c *GenerationCache) Set(ctx context.Context, key string, gen *core.Generation) {
	data, err := json.Marshal(gen)
	if err != nil {
		slog.WarnContext(ctx, "generation cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		slog.WarnContext(ctx, "generation cache set failed", "key", key, "error", err)
	}
}

// Close closes the underlying store.
func (c *GenerationCache) Close() error {
	return c.store.Close()
}
