// Package functions holds the registry of locally executable functions the
// model may invoke, plus the built-in set loaded at startup.
package functions

import (
	"context"

	"agentgate/internal/core"
)

// HandlerFunc executes a function with decoded JSON arguments.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Definition is a core.Function backed by a plain Go handler.
type Definition struct {
	name        string
	description string
	parameters  map[string]any
	handler     HandlerFunc
}

var _ core.Function = (*Definition)(nil)

// New creates a function definition. parameters is a JSON Schema object.
func New(name, description string, parameters map[string]any, handler HandlerFunc) *Definition {
	return &Definition{
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

func (d *Definition) Name() string        { return d.name }
func (d *Definition) Description() string { return d.description }

func (d *Definition) Parameters() map[string]any {
	if d.parameters == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return d.parameters
}

func (d *Definition) Execute(ctx context.Context, args map[string]any) (any, error) {
	return d.handler(ctx, args)
}
