package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tiendamx/asistente-catalogo/internal/httpkit"
)

// OpenAIClient talks to any OpenAI-compatible chat-completion endpoint.
// In production this points at DeepSeek; the base URL is configurable so
// tests and local deployments can swap backends without code changes.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
// timeout bounds every HTTP call; zero means 15 seconds.
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(timeout))

	return &OpenAIClient{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
	}
}

// Chat sends a completion request and returns the assistant text.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Ping checks if the provider is reachable by listing models.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
