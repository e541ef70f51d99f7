package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dictionary/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dictionary/pkg/config"
)

func TestAdapter_RoutesToProviderWithDefaults(t *testing.T) {
	var gotModel, gotSystem string
	openai := &MockProvider{ProviderName: "openai", CompleteFunc: func(_ context.Context, system, _ string, model string) (*GenerateResponseResult, error) {
		gotSystem, gotModel = system, model
		return &GenerateResponseResult{Content: "[]", Provider: "openai", Model: model}, nil
	}}
	anthropic := &MockProvider{ProviderName: "anthropic"}

	a := NewAdapter(AdapterConfig{DefaultProvider: "openai", DefaultModel: "gpt-4o-mini"}, zaptest.NewLogger(t), openai, anthropic)

	res, err := a.Generate(context.Background(), "sys", "user", "", "")
	require.NoError(t, err)
	assert.Equal(t, "[]", res.Content)
	assert.Equal(t, "gpt-4o-mini", gotModel)
	assert.Equal(t, "sys", gotSystem)

	res, err = a.Generate(context.Background(), "sys", "user", "anthropic", "claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Provider)

	assert.Equal(t, []string{"anthropic", "openai"}, a.Providers())
	assert.True(t, a.HasProvider(""))
	assert.False(t, a.HasProvider("gemini"))
}

func TestAdapter_UnknownProvider(t *testing.T) {
	a := NewAdapter(AdapterConfig{DefaultProvider: "openai"}, zaptest.NewLogger(t), &MockProvider{ProviderName: "openai"})

	_, err := a.Generate(context.Background(), "", "u", "gemini", "m")
	assert.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestAdapter_TimeoutBecomesLLMError(t *testing.T) {
	slow := &MockProvider{ProviderName: "openai", CompleteFunc: func(ctx context.Context, _, _, _ string) (*GenerateResponseResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	a := NewAdapter(AdapterConfig{DefaultProvider: "openai", RequestTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t), slow)

	_, err := a.Generate(context.Background(), "", "u", "", "m")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdapter_CircuitBreakerIsPerProvider(t *testing.T) {
	failing := &MockProvider{ProviderName: "openai", CompleteFunc: func(context.Context, string, string, string) (*GenerateResponseResult, error) {
		return nil, errors.New("status code: 503, service unavailable")
	}}
	healthy := &MockProvider{ProviderName: "anthropic"}

	a := NewAdapter(AdapterConfig{
		DefaultProvider: "openai",
		CircuitBreaker:  CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour},
	}, zaptest.NewLogger(t), failing, healthy)

	for i := 0; i < 2; i++ {
		_, err := a.Generate(context.Background(), "", "u", "openai", "m")
		require.Error(t, err)
		assert.Equal(t, ErrorTypeEndpoint, GetErrorType(err))
	}

	_, err := a.Generate(context.Background(), "", "u", "openai", "m")
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))

	state, ok := a.BreakerState("openai")
	require.True(t, ok)
	assert.Equal(t, CircuitOpen, state)

	_, err = a.Generate(context.Background(), "", "u", "anthropic", "m")
	assert.NoError(t, err)
}

func TestAdapter_NonRetryableErrorsDoNotTrip(t *testing.T) {
	calls := 0
	badKey := &MockProvider{ProviderName: "openai", CompleteFunc: func(context.Context, string, string, string) (*GenerateResponseResult, error) {
		calls++
		return nil, errors.New("status code: 401, invalid api key")
	}}
	a := NewAdapter(AdapterConfig{
		DefaultProvider: "openai",
		CircuitBreaker:  CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour},
	}, zaptest.NewLogger(t), badKey)

	for i := 0; i < 3; i++ {
		_, err := a.Generate(context.Background(), "", "u", "", "m")
		assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
	}
	assert.Equal(t, 3, calls)
}

func TestNewAdapterFromConfig(t *testing.T) {
	cfg := config.LLMConfig{DefaultProvider: "openai", DefaultModel: "gpt-4o-mini", RequestTimeoutSeconds: 5}

	a := NewAdapterFromConfig(cfg, zaptest.NewLogger(t))
	assert.Equal(t, []string{"openai"}, a.Providers())

	cfg.Anthropic.APIKey = "sk-ant-test"
	a = NewAdapterFromConfig(cfg, zaptest.NewLogger(t))
	assert.Equal(t, []string{"anthropic", "openai"}, a.Providers())

	provider, model := a.Defaults()
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o-mini", model)
}
