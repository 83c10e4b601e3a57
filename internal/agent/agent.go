// Package agent reconciles model output with locally registered functions.
//
// A request names the functions the model may call. The dispatcher resolves
// them, sends the prompt upstream, and when the model answers with a function
// call it executes the matching handler and returns the handler's output in
// place of the model text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"agentgate/internal/core"
	"agentgate/internal/functions"
)

// Dispatcher serves chat requests against one upstream provider.
type Dispatcher struct {
	provider core.Provider
	registry *functions.Registry
}

// New creates a dispatcher.
func New(provider core.Provider, registry *functions.Registry) *Dispatcher {
	return &Dispatcher{provider: provider, registry: registry}
}

// Provider returns the upstream the dispatcher talks to.
func (d *Dispatcher) Provider() core.Provider { return d.provider }

// resolve maps the requested names to function metadata. Nothing is sent
// upstream when a name is unknown.
func (d *Dispatcher) resolve(names []string) ([]core.FunctionSpec, error) {
	fns, err := d.registry.Lookup(names)
	if err != nil {
		return nil, err
	}
	specs := make([]core.FunctionSpec, 0, len(fns))
	for _, fn := range fns {
		specs = append(specs, core.SpecOf(fn))
	}
	return specs, nil
}

// execute runs the function the model chose. The name is resolved against
// the registry again since the model may answer with any name.
func (d *Dispatcher) execute(ctx context.Context, call *core.FunctionCall) (any, error) {
	fn, err := d.registry.Get(call.Name)
	if err != nil {
		return nil, err
	}
	if info := core.GetCallInfo(ctx); info != nil {
		info.FunctionCalled = call.Name
	}
	slog.DebugContext(ctx, "executing function call",
		"function", call.Name,
		"request_id", core.GetRequestID(ctx),
	)
	return functions.Invoke(ctx, fn, call.Arguments)
}

func (d *Dispatcher) record(ctx context.Context, streaming bool) *core.CallInfo {
	info := core.GetCallInfo(ctx)
	if info == nil {
		return nil
	}
	info.Provider = d.provider.Name()
	info.Model = d.provider.Model()
	info.Streaming = streaming
	return info
}

// Chat serves a request synchronously. The result is the output of the
// function the model called, or the model text when it called none.
func (d *Dispatcher) Chat(ctx context.Context, req *core.ChatRequest) (any, error) {
	specs, err := d.resolve(req.Functions)
	if err != nil {
		return nil, err
	}
	info := d.record(ctx, false)

	gen, err := d.provider.Generate(ctx, req.Input, specs)
	if err != nil {
		return nil, err
	}
	if info != nil {
		usage := gen.Usage
		info.Usage = &usage
	}

	if gen.FunctionCall != nil {
		return d.execute(ctx, gen.FunctionCall)
	}
	return gen.Content, nil
}

// Stream resolves the request's functions and returns the chunk sequence.
// Resolution errors are returned before any chunk is produced; later failures
// end the sequence with an error.
func (d *Dispatcher) Stream(ctx context.Context, req *core.ChatRequest) (iter.Seq2[string, error], error) {
	specs, err := d.resolve(req.Functions)
	if err != nil {
		return nil, err
	}
	info := d.record(ctx, true)

	return func(yield func(string, error) bool) {
		for chunk, err := range d.provider.Stream(ctx, req.Input, specs) {
			if err != nil {
				yield("", err)
				return
			}
			if chunk.Usage != nil && info != nil {
				info.Usage = chunk.Usage
			}

			switch {
			case chunk.FunctionCall != nil:
				result, err := d.execute(ctx, chunk.FunctionCall)
				if err != nil {
					yield("", err)
					return
				}
				text, err := formatResult(result)
				if err != nil {
					yield("", core.NewFunctionExecutionError(chunk.FunctionCall.Name, err))
					return
				}
				if !yield(text, nil) {
					return
				}
			case chunk.Content != "":
				if !yield(chunk.Content, nil) {
					return
				}
			}
		}
	}, nil
}

// formatResult renders a function result as one stream chunk: strings as is,
// anything else as JSON.
func formatResult(result any) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode function result: %w", err)
	}
	return string(data), nil
}
