package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient is the Google Gemini LLM client.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() string {
	return string(ProviderGemini)
}

// Models returns available models.
func (c *GeminiClient) Models() []string {
	return []string{
		"gemini-1.5-flash",
		"gemini-1.5-pro",
	}
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Complete sends a completion request. Prior messages are flattened into a
// single prompt since the classifier and extractor are single-turn.
func (c *GeminiClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	modelName := req.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Temperature))
	model.SetMaxOutputTokens(int32(defaultMaxTokens(req.MaxTokens)))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	var prompt strings.Builder
	for _, msg := range req.Messages {
		if len(req.Messages) > 1 {
			prompt.WriteString(msg.Role)
			prompt.WriteString(": ")
		}
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return nil, fmt.Errorf("gemini generate error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoContent
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return nil, ErrNoContent
	}

	out := &CompletionResponse{
		Content:    sb.String(),
		Model:      modelName,
		StopReason: resp.Candidates[0].FinishReason.String(),
		LatencyMs:  time.Since(start).Milliseconds(),
	}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
