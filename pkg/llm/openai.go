package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIProvider talks to OpenAI and OpenAI-compatible endpoints (vLLM, Ollama, ...).
type OpenAIProvider struct {
	client   *openai.Client
	endpoint string
	logger   *zap.Logger
}

// OpenAIConfig holds configuration for creating an OpenAI provider.
type OpenAIConfig struct {
	BaseURL string // Empty selects api.openai.com
	APIKey  string // Optional for local endpoints
}

// NewOpenAIProvider creates a provider for OpenAI-compatible endpoints.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: clientConfig.BaseURL,
		logger:   logger.Named("openai"),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete generates a chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, systemMessage, userMessage, model string) (*GenerateResponseResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemMessage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userMessage})

	p.logger.Debug("LLM request",
		zap.String("model", model),
		zap.Int("prompt_len", len(userMessage)))

	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		p.logger.Error("LLM request failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = model
		llmErr.Provider = p.Name()
		return nil, llmErr
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeEmpty, "no choices in response", false, nil)
	}

	p.logger.Info("LLM request completed",
		zap.String("model", model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          resp.Choices[0].Message.Content,
		Provider:         p.Name(),
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// Endpoint returns the base URL requests are sent to.
func (p *OpenAIProvider) Endpoint() string {
	return p.endpoint
}

var _ Provider = (*OpenAIProvider)(nil)

func errNoContent(provider string) error {
	return NewError(ErrorTypeEmpty, fmt.Sprintf("%s returned no text content", provider), false, nil)
}
