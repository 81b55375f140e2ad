// Package llm defines the Provider interface for the language-model backends
// that propose melodies when AI assist is enabled.
//
// The engine only needs single-shot completions: a system prompt describing
// the musical context, one user turn, and a text reply expected to hold a
// JSON melody. Streaming and tool calling are out of scope.
//
// Implementors must be safe for concurrent use and must honour ctx.
package llm

import "context"

// Roles accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Usage holds token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries one completion call. Messages must be non-empty.
type CompletionRequest struct {
	Messages []Message

	// SystemPrompt, when set, is sent before Messages.
	SystemPrompt string

	// Temperature in [0, 2]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// CompletionResponse is the backend reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model name requests are sent to.
	Model() string
}
