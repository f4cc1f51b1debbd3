package providers

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultMaxConcurrency is the worker count used when a client does not set one.
const DefaultMaxConcurrency = 12

// LLMClient is the interface for chat-completion providers.
type LLMClient interface {
	// Chat sends a chat request and returns the response. A non-nil error
	// means the request could not be completed; ChatResult.Success reports
	// whether the content is usable.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the provider identifier.
	Name() string

	// RequestsPerSecond returns the dispatch rate for this provider.
	RequestsPerSecond() float64

	// MaxRetries returns the in-call retry budget for transient errors.
	MaxRetries() int
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests structured JSON output conforming to Schema.
type ResponseFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

// ChatRequest is a request to an LLM provider.
type ChatRequest struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// RequestID is generated when empty.
	RequestID string `json:"request_id,omitempty"`
}

// ChatResult is the response from an LLM provider.
type ChatResult struct {
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	ExecutionTime time.Duration `json:"execution_time"`
	Provider      string        `json:"provider"`
	ModelUsed     string        `json:"model_used"`
	RequestID     string        `json:"request_id"`
	Attempts      int           `json:"attempts"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Error types reported in ChatResult.ErrorType.
const (
	ErrorTypeHTTP             = "http_error"
	ErrorTypeEmptyResponse    = "empty_response"
	ErrorTypeJSONParse        = "json_parse"
	ErrorTypeSchemaValidation = "schema_validation"
)

// Pricing is the per-million-token price of a model.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Cost returns the USD cost of a call with the given token counts.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1_000_000*p.InputPerMillion +
		float64(completionTokens)/1_000_000*p.OutputPerMillion
}

// Float returns a pointer to v, for optional request fields.
func Float(v float64) *float64 {
	return &v
}
