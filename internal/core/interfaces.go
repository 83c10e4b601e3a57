// Package core defines the core interfaces and types for the agent gateway.
package core

import (
	"context"
	"iter"
)

// Provider defines the interface for upstream LLM providers
type Provider interface {
	// Name returns the provider type (e.g. "openai")
	Name() string

	// Model returns the model requests are sent to
	Model() string

	// Generate sends the prompt as a single user message, offering functions as tools
	Generate(ctx context.Context, prompt string, functions []FunctionSpec) (*Generation, error)

	// Stream is the streaming variant of Generate. Tool-call fragments are
	// accumulated so every yielded FunctionCall is complete.
	Stream(ctx context.Context, prompt string, functions []FunctionSpec) iter.Seq2[Chunk, error]
}

// Function is a locally registered handler the model may ask to invoke
type Function interface {
	Name() string
	Description() string
	// Parameters returns the JSON Schema object describing the arguments
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// SpecOf returns the metadata of fn offered to the model
func SpecOf(fn Function) FunctionSpec {
	return FunctionSpec{
		Name:        fn.Name(),
		Description: fn.Description(),
		Parameters:  fn.Parameters(),
	}
}
