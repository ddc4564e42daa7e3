// Package llm provides the chat-completion port used by the dialogue
// loop and the description summarizer.
//
// The dialogue controller never talks to a provider directly; it is
// written against [Client] so the state machine can be driven from
// tests with a scripted implementation.
package llm

import "context"

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request is a single chat-completion call. Model overrides the
// client's configured default when non-empty.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Client is the interface all chat-completion providers implement.
type Client interface {
	// Chat sends a completion request and returns the assistant text.
	Chat(ctx context.Context, req Request) (string, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
