// Package auditlog records one call log entry per agent request.
// Entries are captured by an Echo middleware and written asynchronously to
// the configured storage backend.
package auditlog

import (
	"context"
	"time"
)

// LogStore defines the interface for call log storage backends.
// Implementations must be safe for concurrent use.
type LogStore interface {
	// WriteBatch writes multiple log entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*LogEntry) error

	// List returns the most recent entries matching params, newest first.
	List(ctx context.Context, params ListParams) ([]LogEntry, error)

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close stops background work. The database itself is owned by the
	// storage layer.
	Close() error
}

// ListParams filters List results.
type ListParams struct {
	Limit int
	// FunctionCalled restricts results to requests that executed this function.
	FunctionCalled string
	// ErrorsOnly restricts results to failed requests.
	ErrorsOnly bool
}

// LogEntry is a single call log entry. Fields queried by the stores are
// top-level; the rest lives in Data.
type LogEntry struct {
	ID         string    `json:"id" bson:"_id"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	DurationNs int64     `json:"duration_ns" bson:"duration_ns"`
	RequestID  string    `json:"request_id" bson:"request_id"`
	Method     string    `json:"method" bson:"method"`
	Path       string    `json:"path" bson:"path"`
	StatusCode int       `json:"status_code" bson:"status_code"`
	Streaming  bool      `json:"streaming" bson:"streaming"`

	// Functions are the names offered to the model by the request.
	Functions      []string `json:"functions,omitempty" bson:"functions,omitempty"`
	FunctionCalled string   `json:"function_called,omitempty" bson:"function_called,omitempty"`
	ErrorCode      string   `json:"error_code,omitempty" bson:"error_code,omitempty"`

	Provider         string `json:"provider,omitempty" bson:"provider,omitempty"`
	Model            string `json:"model,omitempty" bson:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens" bson:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens" bson:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens" bson:"total_tokens"`

	Data *LogData `json:"data,omitempty" bson:"data,omitempty"`
}

// LogData holds the less frequently queried details of an entry.
// Fields are omitted when empty to save storage space.
type LogData struct {
	ClientIP     string `json:"client_ip,omitempty" bson:"client_ip,omitempty"`
	UserAgent    string `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`

	// Bodies are recorded only when LogBodies is set. JSON bodies are stored
	// decoded so MongoDB keeps them as native documents.
	RequestBody  any `json:"request_body,omitempty" bson:"request_body,omitempty"`
	ResponseBody any `json:"response_body,omitempty" bson:"response_body,omitempty"`
	// BodyTruncated is set when a body exceeded MaxBodyCapture.
	BodyTruncated bool `json:"body_truncated,omitempty" bson:"body_truncated,omitempty"`
}

// Config holds call log configuration
type Config struct {
	Enabled bool

	// LogBodies enables logging of full request/response bodies
	LogBodies bool

	// BufferSize is the number of entries the logger queues before dropping
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep entries (0 = forever)
	RetentionDays int

	// PathPrefix limits logging to requests under this path
	PathPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 30,
	}
}
