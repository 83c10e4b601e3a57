// Package anthropic provides the Anthropic upstream for the agent gateway.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"agentgate/config"
	"agentgate/internal/core"
	"agentgate/internal/providers"
)

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New:  New,
}

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4000
)

// Provider implements core.Provider on the official Anthropic SDK.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Anthropic provider from configuration.
func New(cfg config.ProviderConfig, opts providers.Options) (core.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	var reqOpts []option.RequestOption
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return NewWithOptions(cfg, reqOpts...), nil
}

// NewWithOptions creates a provider with extra SDK request options.
func NewWithOptions(cfg config.ProviderConfig, extra ...option.RequestOption) *Provider {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Provider{
		client:    anthropic.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *Provider) Name() string  { return "anthropic" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) params(prompt string, functions []core.FunctionSpec) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if len(functions) == 0 {
		return params, nil
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(functions))
	for _, fn := range functions {
		tool, err := toolParam(fn)
		if err != nil {
			return params, err
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: tool})
	}
	params.Tools = tools
	return params, nil
}

// toolParam converts function metadata to the SDK's tool shape via its JSON
// form, which keeps every JSON Schema keyword of the parameters.
func toolParam(fn core.FunctionSpec) (*anthropic.ToolParam, error) {
	schema := fn.Parameters
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(map[string]any{
		"name":         fn.Name,
		"description":  fn.Description,
		"input_schema": schema,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tool %s: %w", fn.Name, err)
	}

	var tool anthropic.ToolParam
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, fmt.Errorf("convert tool %s: %w", fn.Name, err)
	}
	return &tool, nil
}

func usageOf(u anthropic.Usage) core.Usage {
	return core.Usage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(u.InputTokens + u.OutputTokens),
	}
}

func functionCallOf(block anthropic.ContentBlockUnion) *core.FunctionCall {
	args := string(block.Input)
	if args == "" {
		args = "{}"
	}
	return &core.FunctionCall{ID: block.ID, Name: block.Name, Arguments: args}
}

// Generate sends one message request. Text blocks are concatenated; the first
// tool_use block becomes the function call.
func (p *Provider) Generate(ctx context.Context, prompt string, functions []core.FunctionSpec) (*core.Generation, error) {
	params, err := p.params(prompt, functions)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	gen := &core.Generation{Model: p.model, Usage: usageOf(msg.Usage)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			gen.Content += block.Text
		case "tool_use":
			if gen.FunctionCall == nil {
				gen.FunctionCall = functionCallOf(block)
			}
		}
	}
	return gen, nil
}

// Stream yields text deltas as they arrive and each tool_use block once its
// content block stops, when its input JSON is complete.
func (p *Provider) Stream(ctx context.Context, prompt string, functions []core.FunctionSpec) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		params, err := p.params(prompt, functions)
		if err != nil {
			yield(core.Chunk{}, err)
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				yield(core.Chunk{}, fmt.Errorf("anthropic: accumulate stream: %w", err))
				return
			}

			switch event.Type {
			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				if delta.Delta.Type == "text_delta" && delta.Delta.Text != "" {
					if !yield(core.Chunk{Content: delta.Delta.Text}, nil) {
						return
					}
				}
			case "content_block_stop":
				index := int(event.AsContentBlockStop().Index)
				if index < len(message.Content) && message.Content[index].Type == "tool_use" {
					if !yield(core.Chunk{FunctionCall: functionCallOf(message.Content[index])}, nil) {
						return
					}
				}
			case "message_stop":
				usage := usageOf(message.Usage)
				if !yield(core.Chunk{Usage: &usage}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(core.Chunk{}, err)
		}
	}
}
