package llm

import (
	"context"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client    *anthropic.Client
	maxTokens int
	logger    *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string // Optional, for proxies and tests
	MaxTokens int
}

// NewAnthropicProvider creates a provider for Claude models.
func NewAnthropicProvider(cfg AnthropicConfig, logger *zap.Logger) *AnthropicProvider {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		maxTokens: maxTokens,
		logger:    logger.Named("anthropic"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends a single-turn Messages request and returns the text blocks.
func (p *AnthropicProvider) Complete(ctx context.Context, systemMessage, userMessage, model string) (*GenerateResponseResult, error) {
	p.logger.Debug("LLM request",
		zap.String("model", model),
		zap.Int("prompt_len", len(userMessage)))

	start := time.Now()

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    systemMessage,
		MaxTokens: p.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &userMessage},
			}},
		},
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

	text := extractTextFromResponse(resp)
	if text == "" {
		return nil, errNoContent(p.Name())
	}

	p.logger.Info("LLM request completed",
		zap.String("model", model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponseResult{
		Content:          text,
		Provider:         p.Name(),
		Model:            model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func extractTextFromResponse(resp anthropic.MessagesResponse) string {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			text += *block.Text
		}
	}
	return text
}

var _ Provider = (*AnthropicProvider)(nil)
