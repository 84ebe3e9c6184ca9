package adapter

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of a chat-style completion request
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a provider-independent chat completion request
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// LLM is the language-model completion collaborator
type LLM interface {
	// Complete returns the text of a single completion for the request
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
}

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
