package core

// ChatRequest represents the incoming agent chat request
type ChatRequest struct {
	Input     string   `json:"input" validate:"required,min=1,max=4096"`
	Functions []string `json:"functions,omitempty"`
	Streaming bool     `json:"streaming,omitempty"`
}

// ChatResponse represents the synchronous agent chat response
type ChatResponse struct {
	Result any     `json:"result"`
	Error  *string `json:"error"`
}

// FunctionSpec is the metadata offered to the model for one callable function
type FunctionSpec struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// FunctionCall is a complete function invocation requested by the model.
// Arguments holds the raw JSON object text as produced upstream.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generation is the result of a non-streaming upstream call
type Generation struct {
	Model        string        `json:"model"`
	Content      string        `json:"content"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Usage        Usage         `json:"usage"`
}

// Chunk is one element of an upstream stream. Exactly one of Content or
// FunctionCall is meaningful; Usage is set only on the final accounting chunk.
type Chunk struct {
	Content      string
	FunctionCall *FunctionCall
	Usage        *Usage
}
