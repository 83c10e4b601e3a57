package server

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"agentgate/config"
	"agentgate/internal/agent"
	"agentgate/internal/core"
	"agentgate/internal/functions"
)

type mockProvider struct {
	gen       *core.Generation
	err       error
	chunks    []core.Chunk
	streamErr error
}

func (m *mockProvider) Name() string  { return "mock" }
func (m *mockProvider) Model() string { return "mock-model" }

func (m *mockProvider) Generate(context.Context, string, []core.FunctionSpec) (*core.Generation, error) {
	if m.err != nil {
		return nil, core.NewLLMError("mock", m.err)
	}
	if m.gen == nil {
		return &core.Generation{}, nil
	}
	return m.gen, nil
}

func (m *mockProvider) Stream(context.Context, string, []core.FunctionSpec) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
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

func testRegistry(t *testing.T) *functions.Registry {
	t.Helper()
	r := functions.NewRegistry()
	require.NoError(t, r.Register(functions.New("test_function", "Echoes its arguments", nil,
		func(_ context.Context, args map[string]any) (any, error) { return args, nil })))
	require.NoError(t, r.Register(functions.New("failing", "Always fails", nil,
		func(context.Context, map[string]any) (any, error) { return nil, errors.New("Test error") })))
	return r
}

// newTestServer mounts the agent routes under /api/v1 unless cfg names
// another prefix ("/" for the root).
func newTestServer(t *testing.T, p *mockProvider, cfg *Config) *Server {
	t.Helper()
	if cfg != nil && cfg.APIPrefix == "" {
		withPrefix := *cfg
		withPrefix.APIPrefix = config.DefaultAPIPrefix
		cfg = &withPrefix
	}
	return New(agent.New(p, testRegistry(t)), cfg)
}

func doJSON(srv http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
