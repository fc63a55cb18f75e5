// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
)

// ErrNoContent is returned when a provider answers with no text.
var ErrNoContent = errors.New("llm returned no content")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// NewClient creates a new LLM client based on provider.
func NewClient(ctx context.Context, provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	case ProviderGemini:
		return NewGeminiClient(ctx, apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}

func defaultMaxTokens(n int) int {
	if n == 0 {
		return 1024
	}
	return n
}
