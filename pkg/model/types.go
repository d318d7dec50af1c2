package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is one conversation turn in the Messages API shape. Content is a
// JSON string or an array of content blocks, passed through unchanged.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// TextMessage builds a message whose content is a plain string.
func TextMessage(role, text string) Message {
	content, _ := json.Marshal(text)
	return Message{Role: role, Content: content}
}

// BlocksMessage builds a message whose content is a list of blocks.
func BlocksMessage(role string, blocks []ContentBlock) (Message, error) {
	content, err := json.Marshal(blocks)
	if err != nil {
		return Message{}, fmt.Errorf("encoding content blocks: %w", err)
	}
	return Message{Role: role, Content: content}, nil
}

// ContentBlock covers the text, tool_use and tool_result block shapes.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Tool declares a tool the model may call.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model      string      `json:"model"`
	MaxTokens  int         `json:"max_tokens"`
	System     string      `json:"system,omitempty"`
	Messages   []Message   `json:"messages"`
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`
	Stream     bool        `json:"stream"`
}

// ToolChoiceNone forbids tool calls while keeping the definitions.
const ToolChoiceNone = "none"

// ToolChoice controls whether the model may call the offered tools.
type ToolChoice struct {
	Type string `json:"type"`
}

// Usage reports token counts for one response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Stop reasons the bridge acts on.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// ErrorResponse is the JSON body of a failed request and of an "error" frame.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// APIError is a failure reported by the upstream API, either as a non-2xx
// response or as an error frame inside the stream.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	RequestID  string
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("stream error: %s (type: %s)", e.Message, e.Type)
	}
	if e.Type != "" {
		return fmt.Sprintf("HTTP %d: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == 429 || e.Type == "rate_limit_error"
}
