// Package openai provides the OpenAI upstream for the agent gateway.
package openai

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"agentgate/config"
	"agentgate/internal/core"
	"agentgate/internal/providers"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultModel     = "gpt-4-turbo"
	defaultMaxTokens = 4000
)

// Provider implements core.Provider on the official OpenAI SDK.
// Retries and backoff are left to the SDK.
type Provider struct {
	client    openai.Client
	model     string
	maxTokens int64
}

// New creates an OpenAI provider from configuration.
func New(cfg config.ProviderConfig, opts providers.Options) (core.Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
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
		client:    openai.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (p *Provider) Name() string  { return "openai" }
func (p *Provider) Model() string { return p.model }

func (p *Provider) params(prompt string, functions []core.FunctionSpec) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(p.model),
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens: param.NewOpt(p.maxTokens),
	}
	if len(functions) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(functions))
	for _, fn := range functions {
		def := shared.FunctionDefinitionParam{
			Name:       fn.Name,
			Parameters: fn.Parameters,
		}
		if fn.Description != "" {
			def.Description = param.NewOpt(fn.Description)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{Function: def},
		})
	}
	params.Tools = tools
	return params
}

// Generate performs a non-streaming chat completion. Only the first tool call
// of the first choice is surfaced.
func (p *Provider) Generate(ctx context.Context, prompt string, functions []core.FunctionSpec) (*core.Generation, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(prompt, functions))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}

	msg := resp.Choices[0].Message
	gen := &core.Generation{
		Model:   p.model,
		Content: msg.Content,
		Usage: core.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, toolCall := range msg.ToolCalls {
		if toolCall.Type != "function" {
			continue
		}
		fn := toolCall.AsFunction()
		gen.FunctionCall = &core.FunctionCall{
			ID:        fn.ID,
			Name:      fn.Function.Name,
			Arguments: fn.Function.Arguments,
		}
		break
	}
	return gen, nil
}

// Stream performs a streaming chat completion. Text deltas are yielded as they
// arrive; tool-call fragments are buffered by index and yielded once the
// choice finishes or the stream ends.
func (p *Provider) Stream(ctx context.Context, prompt string, functions []core.FunctionSpec) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		params := p.params(prompt, functions)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		calls := newToolCallBuffer()
		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(core.Chunk{Content: choice.Delta.Content}, nil) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					calls.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
				}
				if choice.FinishReason != "" {
					for _, call := range calls.drain() {
						if !yield(core.Chunk{FunctionCall: call}, nil) {
							return
						}
					}
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				usage := &core.Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
				if !yield(core.Chunk{Usage: usage}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(core.Chunk{}, err)
			return
		}
		for _, call := range calls.drain() {
			if !yield(core.Chunk{FunctionCall: call}, nil) {
				return
			}
		}
	}
}

// toolCallBuffer reassembles streamed tool calls, which arrive as fragments
// keyed by index: the first fragment carries id and name, later ones append
// to the arguments.
type toolCallBuffer struct {
	calls map[int64]*core.FunctionCall
}

func newToolCallBuffer() *toolCallBuffer {
	return &toolCallBuffer{calls: make(map[int64]*core.FunctionCall)}
}

func (b *toolCallBuffer) add(index int64, id, name, arguments string) {
	call, ok := b.calls[index]
	if !ok {
		call = &core.FunctionCall{}
		b.calls[index] = call
	}
	if id != "" {
		call.ID = id
	}
	if name != "" {
		call.Name = name
	}
	call.Arguments += arguments
}

// drain returns buffered calls in index order and empties the buffer.
// Fragments that never received a name are dropped.
func (b *toolCallBuffer) drain() []*core.FunctionCall {
	if len(b.calls) == 0 {
		return nil
	}
	indexes := make([]int64, 0, len(b.calls))
	for i := range b.calls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	out := make([]*core.FunctionCall, 0, len(indexes))
	for _, i := range indexes {
		if call := b.calls[i]; call.Name != "" {
			out = append(out, call)
		}
	}
	b.calls = make(map[int64]*core.FunctionCall)
	return out
}
