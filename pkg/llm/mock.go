package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing LLM functionality.
// Set GenerateFunc to control behavior in tests.
type MockLLMClient struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns Response (default "[]").
	GenerateFunc func(ctx context.Context, systemMessage, userMessage, provider, model string) (*GenerateResponseResult, error)

	// Response is returned when GenerateFunc is nil.
	Response string

	mu    sync.Mutex
	calls []MockGenerateCall
}

// MockGenerateCall records one Generate invocation.
type MockGenerateCall struct {
	SystemMessage string
	UserMessage   string
	Provider      string
	Model         string
}

// NewMockLLMClient creates a mock that answers every call with response.
func NewMockLLMClient(response string) *MockLLMClient {
	return &MockLLMClient{Response: response}
}

// Generate implements LLMClient.
func (m *MockLLMClient) Generate(ctx context.Context, systemMessage, userMessage, provider, model string) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockGenerateCall{
		SystemMessage: systemMessage,
		UserMessage:   userMessage,
		Provider:      provider,
		Model:         model,
	})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemMessage, userMessage, provider, model)
	}
	content := m.Response
	if content == "" {
		content = "[]"
	}
	return &GenerateResponseResult{Content: content, Provider: provider, Model: model}, nil
}

// Calls returns a copy of the recorded calls.
func (m *MockLLMClient) Calls() []MockGenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockGenerateCall(nil), m.calls...)
}

// Reset clears call tracking.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Ensure MockLLMClient implements LLMClient at compile time.
var _ LLMClient = (*MockLLMClient)(nil)

// MockProvider is a Provider whose replies are scripted by CompleteFunc.
type MockProvider struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, systemMessage, userMessage, model string) (*GenerateResponseResult, error)
}

func (p *MockProvider) Name() string { return p.ProviderName }

func (p *MockProvider) Complete(ctx context.Context, systemMessage, userMessage, model string) (*GenerateResponseResult, error) {
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, systemMessage, userMessage, model)
	}
	return &GenerateResponseResult{Content: "{}", Provider: p.ProviderName, Model: model}, nil
}

var _ Provider = (*MockProvider)(nil)
