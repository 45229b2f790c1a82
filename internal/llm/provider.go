// Package llm defines the uniform capability interface over language-model
// backends: embedding generation, chat generation and tag generation. Each
// backend lives in its own subpackage and is selected by string key through
// the Factory. Retry with exponential backoff is layered on top by the
// factory, so callers always hold an already-wrapped Provider.
package llm

import "context"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation. The abstraction guarantees the
// role/content mapping into each backend's wire format is lossless.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NormalizeRole maps arbitrary caller-supplied role strings onto the closed
// role set. Anything unrecognized becomes a user turn.
func NormalizeRole(s string) Role {
	switch Role(s) {
	case RoleSystem, RoleAssistant, RoleUser:
		return Role(s)
	case "model", "bot": // common aliases in stored conversation history
		return RoleAssistant
	default:
		return RoleUser
	}
}

// TokenUsage reports token counts for one completion.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response wraps a chat completion result.
type Response struct {
	Content string     `json:"content"`
	Model   string     `json:"model,omitempty"`
	Tokens  TokenUsage `json:"tokens"`
}

// RequestOptions tunes a single generation call.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Provider is the interface all language-model backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// GenerateEmbedding returns the embedding vector for text. A (nil, nil)
	// return signals the backend has no embedding endpoint; the caller is
	// expected to fall back to the configured default embedding provider.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateResponse produces a chat completion. History turns are mapped
	// losslessly into the backend turn format.
	GenerateResponse(ctx context.Context, systemPrompt, userMessage string, history []Message, opts *RequestOptions) (*Response, error)

	// GenerateTags produces short topic tags for text.
	GenerateTags(ctx context.Context, text string) ([]string, error)
}

// EstimateTokens approximates a token count when the backend does not report
// usage: ceil(chars / 4).
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
