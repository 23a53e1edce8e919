// Package llm abstracts text-generation backends (OpenAI-compatible servers
// including Ollama, Anthropic and Gemini) behind one Provider interface.
package llm

import "context"

// Provider generates a completion for a conversation.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	// ModelID is the model this provider is configured to call.
	ModelID() string
}

// Request is one completion call.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response is the generated text and its accounting.
type Response struct {
	Text  string
	Usage Usage
	// Model is the model that actually served the request.
	Model string
	// StopReason is normalized to "end" or "max_tokens".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

func resolveModel(name string, aliases map[string]string) string {
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}
