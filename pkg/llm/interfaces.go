// Package llm sends rendered prompts to LLM providers and extracts structured
// JSON from their replies.
package llm

import (
	"context"
)

// GenerateResponseResult is the text of one completion plus usage stats.
type GenerateResponseResult struct {
	Content          string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is one LLM backend (OpenAI-compatible, Anthropic, ...).
type Provider interface {
	// Name is the provider key jobs refer to, e.g. "openai".
	Name() string

	// Complete sends a system and user message to model.
	Complete(ctx context.Context, systemMessage, userMessage, model string) (*GenerateResponseResult, error)
}

// LLMClient is the adapter the job engine depends on.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// Generate routes the request to provider. An empty provider or model
	// selects the configured defaults.
	Generate(ctx context.Context, systemMessage, userMessage, provider, model string) (*GenerateResponseResult, error)
}

// Ensure Adapter implements LLMClient at compile time.
var _ LLMClient = (*Adapter)(nil)
