// Package llm provides the client for the OpenAI-compatible chat completions
// protocol spoken by the AIML gateway, which multiplexes every model family
// the agent uses behind a single endpoint.
package llm

import "context"

// Message is a single chat message in a completion request.
type Message struct {
	Role       string
	Content    string
	ToolCallID string     // set on "tool" messages answering a call
	ToolCalls  []ToolCall // set on assistant messages that issued calls
}

// ToolCall is a tool invocation requested by the model. Arguments are the
// decoded JSON object from the wire format.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes one callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  ParameterSchema
}

// ParameterSchema is the JSON schema for a tool's arguments object.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one field of a parameter schema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a single chat completion request. Model overrides the
// client's default model when set; the router picks it per iteration.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is the parsed completion result.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      TokenUsage
}

// Client completes chat requests against a model gateway.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Model returns the default model used when a request does not name one.
	Model() string
}

// Config carries the connection settings for a gateway client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds, 0 means the client default
	Headers map[string]string
}
